//go:build windows

// Command etwwatchdog is the helper process spawned by watchdog.Watchdog,
// implementing the helper-side protocol of spec.md §4.7. Its contract
// mirrors original EventTraceKit.EtwWatchDog/Main.cpp: open a
// synchronize-only handle to the host PID, open the shared ready/exit
// events by name, signal ready, then block until either the host exits or
// the exit event is set — and if the host was what woke it, stop the
// kernel session by name.
//
// Usage: etwwatchdog <host-pid> <session-name> <ready-event-name> <exit-event-name>
package main

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/windows"

	"github.com/etwkit/tracekit/internal/winapi"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) != 4 {
		fmt.Fprintln(os.Stderr, "etwwatchdog: wrong number of arguments")
		return -1
	}

	hostPID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "etwwatchdog: invalid host pid %q: %v\n", args[0], err)
		return -1
	}
	sessionName := args[1]
	readyEventName := args[2]
	exitEventName := args[3]

	hostProcess, err := windows.OpenProcess(windows.SYNCHRONIZE, false, uint32(hostPID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "etwwatchdog: failed to open host process %d: %v\n", hostPID, err)
		return -2
	}
	defer windows.CloseHandle(hostProcess)

	readyEvent, exitEvent, err := openEvents(readyEventName, exitEventName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "etwwatchdog: failed to open events: %v\n", err)
		return -3
	}
	defer windows.CloseHandle(readyEvent)
	defer windows.CloseHandle(exitEvent)

	if err := windows.SetEvent(readyEvent); err != nil {
		// best-effort: logged, not fatal, per spec.md §4.7.
		fmt.Fprintf(os.Stderr, "etwwatchdog: failed to signal ready event: %v\n", err)
	}

	hostExited, err := waitForHostOrExit(hostProcess, exitEvent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "etwwatchdog: wait failed: %v\n", err)
		return 0
	}

	if hostExited {
		if err := stopSession(sessionName); err != nil {
			fmt.Fprintf(os.Stderr, "etwwatchdog: failed to stop trace session %q: %v\n", sessionName, err)
		}
	}
	return 0
}

func openEvents(readyName, exitName string) (ready, exit windows.Handle, err error) {
	readyPtr, err := windows.UTF16PtrFromString(readyName)
	if err != nil {
		return 0, 0, err
	}
	exitPtr, err := windows.UTF16PtrFromString(exitName)
	if err != nil {
		return 0, 0, err
	}

	ready, err = windows.OpenEvent(windows.SYNCHRONIZE|windows.EVENT_MODIFY_STATE, false, readyPtr)
	if err != nil {
		return 0, 0, fmt.Errorf("open ready event: %w", err)
	}
	exit, err = windows.OpenEvent(windows.SYNCHRONIZE, false, exitPtr)
	if err != nil {
		windows.CloseHandle(ready)
		return 0, 0, fmt.Errorf("open exit event: %w", err)
	}
	return ready, exit, nil
}

// waitForHostOrExit blocks until the host process handle or the exit event
// is signaled. It returns hostExited=true only if the host handle won the
// wait.
func waitForHostOrExit(hostProcess, exitEvent windows.Handle) (bool, error) {
	handles := []windows.Handle{hostProcess, exitEvent}
	index, err := windows.WaitForMultipleObjects(handles, false, windows.INFINITE)
	if err != nil {
		return false, err
	}
	const waitObject0 = 0
	return index == waitObject0, nil
}

// stopSession issues EVENT_TRACE_CONTROL_STOP for the named session,
// tolerating ERROR_WMI_INSTANCE_NOT_FOUND (the session is already gone).
func stopSession(sessionName string) error {
	blob, err := winapi.BuildSessionPropertiesBlob(
		windows.GUID{}, 0, 0, 0, winapi.ClockResolutionQPC, 0, 0, sessionName, "")
	if err != nil {
		return err
	}
	namePtr, err := windows.UTF16PtrFromString(sessionName)
	if err != nil {
		return err
	}

	err = winapi.ControlTrace(0, namePtr, blob, winapi.EventTraceControlStop)
	if err == nil || err == windows.ERROR_WMI_INSTANCE_NOT_FOUND {
		return nil
	}
	return err
}
