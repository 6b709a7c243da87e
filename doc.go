//go:build windows

// Package etw implements a real-time trace collection and decoding engine
// for Event Tracing for Windows (ETW).
//
// It configures kernel-level trace sessions with provider filters
// (subpackage session), consumes the resulting in-kernel ring buffers on
// dedicated threads (subpackage processor), decodes every raw event record
// into a self-describing structure (subpackages eventinfocache and
// decoder), stores decoded records in an append-only in-memory log with a
// filtered view (subpackage tracelog), and supervises the session with an
// out-of-process watchdog (subpackage watchdog and cmd/etwwatchdog).
//
// This package holds the data model shared by every component: provider
// and session descriptors, the raw event record and its owned copy, and
// the decoded event stored by the trace log.
package etw
