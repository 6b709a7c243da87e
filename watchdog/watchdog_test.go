//go:build windows

package watchdog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

func TestCreateAutoResetEventIsUsableAndResets(t *testing.T) {
	h, err := createAutoResetEvent("tracekit-watchdog-test-" + t.Name())
	require.NoError(t, err)
	defer windows.CloseHandle(h)

	require.NoError(t, windows.SetEvent(h))

	first, err := windows.WaitForSingleObject(h, 0)
	require.NoError(t, err)
	require.EqualValues(t, windows.WAIT_OBJECT_0, first)

	// auto-reset: a second immediate wait must time out, the event having
	// reset itself after the first successful wait.
	second, err := windows.WaitForSingleObject(h, 0)
	require.NoError(t, err)
	require.EqualValues(t, uint32(windows.WAIT_TIMEOUT), second)
}

func TestWaitForReadyOrExitReadyWins(t *testing.T) {
	proc, err := windows.OpenProcess(windows.SYNCHRONIZE, false, uint32(windows.GetCurrentProcessId()))
	require.NoError(t, err)
	defer windows.CloseHandle(proc)

	ready, err := createAutoResetEvent("tracekit-watchdog-test-ready-" + t.Name())
	require.NoError(t, err)
	defer windows.CloseHandle(ready)

	require.NoError(t, windows.SetEvent(ready))

	// the current process's own handle never becomes signaled on its own,
	// so the ready event must be what wins the race.
	won, err := waitForReadyOrExit(proc, ready, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, won)
}

func TestWaitForReadyOrExitTimesOutWithoutSignal(t *testing.T) {
	proc, err := windows.OpenProcess(windows.SYNCHRONIZE, false, uint32(windows.GetCurrentProcessId()))
	require.NoError(t, err)
	defer windows.CloseHandle(proc)

	ready, err := createAutoResetEvent("tracekit-watchdog-test-idle-" + t.Name())
	require.NoError(t, err)
	defer windows.CloseHandle(ready)

	won, err := waitForReadyOrExit(proc, ready, 50*time.Millisecond)
	require.NoError(t, err, "a timeout is not an API failure")
	require.False(t, won)
}

func TestDefaultExePathSitsNextToHostExecutable(t *testing.T) {
	path, err := defaultExePath()
	require.NoError(t, err)
	require.Contains(t, path, "etwwatchdog.exe")
}
