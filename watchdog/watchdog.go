//go:build windows

// Package watchdog implements the host side of the Watchdog of spec.md
// §4.7: it spawns an auxiliary helper process that holds a synchronize-only
// handle to this process and, should this process die without calling
// Stop, issues a kernel-session stop so no orphan trace session is left
// running. It generalizes EventTraceKit.Logger/WatchDog.cpp's managed
// Process/EventWaitHandle plumbing into plain os/exec and
// golang.org/x/sys/windows primitives, and its helper-side counterpart is
// EventTraceKit.EtwWatchDog/Main.cpp, reimplemented at
// cmd/etwwatchdog.
package watchdog

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/beevik/guid"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

const (
	readyWaitTimeout = 1500 * time.Millisecond
	exitWaitTimeout  = 500 * time.Millisecond
)

// Watchdog supervises one kernel trace session by name. New creates it;
// Start spawns the helper and blocks until it signals readiness; Stop tells
// it to exit and waits (or kills it) before returning.
type Watchdog struct {
	sessionName string
	exePath     string
	log         *zap.Logger

	readyEventName string
	exitEventName  string
	readyEvent     windows.Handle
	exitEvent      windows.Handle

	cmd    *exec.Cmd
	stderr *bytes.Buffer
	done   chan error
}

// New prepares a Watchdog for sessionName. exePath is the path to the
// etwwatchdog helper executable; if empty, it defaults to an
// "etwwatchdog.exe" sitting next to the host's own executable, mirroring
// WatchDog.cpp's GetCurrentAssemblyDir lookup.
func New(sessionName string, exePath string, log *zap.Logger) *Watchdog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watchdog{
		sessionName: sessionName,
		exePath:     exePath,
		log:         log,
	}
}

func defaultExePath() (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(self), "etwwatchdog.exe"), nil
}

// Start spawns the helper process and waits up to 1500 ms for either the
// helper to signal its ready event or the helper process itself to exit —
// the latter means failure, per spec.md §4.7's host-side contract. A
// failure to start is always returned to the caller; per spec.md §4.7 this
// is a fatal start-up error for the session that wanted a watchdog.
func (w *Watchdog) Start() error {
	exePath := w.exePath
	if exePath == "" {
		p, err := defaultExePath()
		if err != nil {
			return fmt.Errorf("watchdog: locate helper executable: %w", err)
		}
		exePath = p
	}
	if _, err := os.Stat(exePath); err != nil {
		return fmt.Errorf("watchdog: helper executable not found: %w", err)
	}

	w.readyEventName = "tracekit-watchdog-ready-" + guid.New().String()
	w.exitEventName = "tracekit-watchdog-exit-" + guid.New().String()

	readyEvent, err := createAutoResetEvent(w.readyEventName)
	if err != nil {
		return fmt.Errorf("watchdog: create ready event: %w", err)
	}
	exitEvent, err := createAutoResetEvent(w.exitEventName)
	if err != nil {
		windows.CloseHandle(readyEvent)
		return fmt.Errorf("watchdog: create exit event: %w", err)
	}
	w.readyEvent = readyEvent
	w.exitEvent = exitEvent

	cmd := exec.Command(exePath,
		fmt.Sprintf("%d", os.Getpid()),
		w.sessionName,
		w.readyEventName,
		w.exitEventName,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	w.stderr = &stderr

	if err := cmd.Start(); err != nil {
		w.closeEvents()
		return fmt.Errorf("watchdog: start helper: %w", err)
	}
	w.cmd = cmd

	done := make(chan error, 1)
	w.done = done
	go func() { done <- cmd.Wait() }()

	procHandle, err := windows.OpenProcess(windows.SYNCHRONIZE, false, uint32(cmd.Process.Pid))
	if err != nil {
		w.forceStop()
		return fmt.Errorf("watchdog: open helper process handle: %w", err)
	}
	defer windows.CloseHandle(procHandle)

	ready, err := waitForReadyOrExit(procHandle, w.readyEvent, readyWaitTimeout)
	if err != nil || !ready {
		w.log.Error("watchdog helper failed to become ready",
			zap.Error(err), zap.String("stderr", stderr.String()))
		w.forceStop()
		return fmt.Errorf("watchdog: helper failed to start: %s", stderr.String())
	}

	return nil
}

// Stop signals the helper's exit event and waits up to 500 ms for it to
// exit cleanly before killing it, per spec.md §4.7. A helper that already
// exited (e.g. crashed after signalling ready) is tolerated: its exit is
// merely logged, never returned as an error, since the caller's own stop
// path still runs regardless.
func (w *Watchdog) Stop() error {
	if w.cmd == nil {
		return nil
	}

	if w.exitEvent != 0 {
		if err := windows.SetEvent(w.exitEvent); err != nil {
			w.log.Warn("failed to signal watchdog exit event", zap.Error(err))
		}
	}

	select {
	case err := <-w.done:
		if err != nil {
			w.log.Info("watchdog helper exited", zap.Error(err))
		}
	case <-time.After(exitWaitTimeout):
		w.log.Warn("watchdog helper did not exit in time, killing it")
		_ = w.cmd.Process.Kill()
		<-w.done
	}

	w.closeEvents()
	w.cmd = nil
	return nil
}

func (w *Watchdog) forceStop() {
	if w.cmd != nil && w.cmd.Process != nil {
		if w.exitEvent != 0 {
			_ = windows.SetEvent(w.exitEvent)
		}
		select {
		case <-w.done:
		case <-time.After(exitWaitTimeout):
			_ = w.cmd.Process.Kill()
		}
	}
	w.closeEvents()
}

func (w *Watchdog) closeEvents() {
	if w.readyEvent != 0 {
		windows.CloseHandle(w.readyEvent)
		w.readyEvent = 0
	}
	if w.exitEvent != 0 {
		windows.CloseHandle(w.exitEvent)
		w.exitEvent = 0
	}
}

func createAutoResetEvent(name string) (windows.Handle, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	return windows.CreateEventEx(nil, namePtr, 0, windows.EVENT_ALL_ACCESS)
}

// waitForReadyOrExit waits for either the helper process handle or the
// ready event to become signaled. It returns ready=true only if the ready
// event won the race.
func waitForReadyOrExit(procHandle, readyEvent windows.Handle, timeout time.Duration) (bool, error) {
	handles := []windows.Handle{procHandle, readyEvent}
	index, err := windows.WaitForMultipleObjects(handles, false, uint32(timeout.Milliseconds()))
	if err != nil {
		return false, err
	}
	const waitObject0 = 0
	return index == waitObject0+1, nil
}
