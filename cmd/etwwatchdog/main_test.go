//go:build windows

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunRejectsWrongArgCount(t *testing.T) {
	require.EqualValues(t, -1, run(nil))
	require.EqualValues(t, -1, run([]string{"1", "2"}))
	require.EqualValues(t, -1, run([]string{"1", "2", "3", "4", "5"}))
}

func TestRunRejectsNonNumericPID(t *testing.T) {
	require.EqualValues(t, -1, run([]string{"not-a-pid", "session", "ready", "exit"}))
}

func TestRunRejectsUnopenableHostProcess(t *testing.T) {
	// PID 0 is the System Idle Process and cannot be opened with
	// PROCESS_SYNCHRONIZE access, so this exercises the "cannot open host"
	// failure path without needing a real watchdog partner.
	require.EqualValues(t, -2, run([]string{"0", "session", "ready", "exit"}))
}
