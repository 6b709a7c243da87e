//go:build windows

// Package processor implements the Processor of spec.md §4.6: one
// OS thread per kernel logger, pumping EVENT_RECORDs from the in-kernel
// ring buffer to a sink until the logger's trace handle is closed. It
// generalizes the "one instance, one OpenTrace, syscall.NewCallback bound
// method" design from other_examples/fibratus's kstreamc_windows.go
// (OpenKstream/openKstream/processEventCallback) from "one fixed kernel
// logger name" to spec.md's "one consumer configuration per logger name",
// using golang.org/x/sync/errgroup instead of fibratus's raw goroutine +
// error channel to join every pumping goroutine and propagate the first
// error.
package processor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/windows"

	"github.com/etwkit/tracekit/internal/winapi"
)

// Sink receives every decoded-ready raw record the processor pulls off the
// kernel ring buffer. tracelog.Log implements this.
type Sink interface {
	Append(record *winapi.EventRecord) error
}

// syntheticEventTraceGUID identifies the kernel's own synthetic
// "EventTraceEvent" provider; its Opcode-INFO record carries the trace
// session header and is redundant in real-time sessions, per spec.md
// §4.6's one filtering rule.
var syntheticEventTraceGUID = windows.GUID{
	Data1: 0x68fdd900, Data2: 0x4a3e, Data3: 0x11d1,
	Data4: [8]byte{0x84, 0xf4, 0x00, 0x00, 0xf8, 0x04, 0x64, 0xe3},
}

const opcodeInfo = 0

// logger is one consumer configuration bound to a kernel logger name.
type logger struct {
	name    string
	handle  winapi.TraceHandle
	logfile *winapi.EventTraceLogfile
	started int32 // atomic bool: start-time already filled in
}

// Processor pumps one or more kernel loggers into a Sink, per spec.md
// §4.6.
type Processor struct {
	mu      sync.Mutex
	loggers []*logger
	sink    Sink
	log     *zap.Logger

	group   *errgroup.Group
	running int32 // atomic count of pumping goroutines still alive
}

// New prepares one consumer configuration per logger name.
func New(loggerNames []string, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	loggers := make([]*logger, len(loggerNames))
	for i, name := range loggerNames {
		loggers[i] = &logger{name: name}
	}
	return &Processor{loggers: loggers, log: log}
}

// SetSink wires the downstream receiver, per spec.md §4.6.
func (p *Processor) SetSink(sink Sink) {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
}

// Start opens one trace handle per logger — a failure here aborts every
// handle already opened — then spawns one goroutine per logger that pumps
// events until the kernel session is closed, per spec.md §4.6.
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, l := range p.loggers {
		if err := p.openLogger(l); err != nil {
			p.closeAllLocked()
			return fmt.Errorf("processor: open logger %q: %w", l.name, err)
		}
	}

	g := new(errgroup.Group)
	p.group = g
	atomic.StoreInt32(&p.running, int32(len(p.loggers)))

	for _, l := range p.loggers {
		l := l
		g.Go(func() error {
			defer atomic.AddInt32(&p.running, -1)
			return p.pump(l)
		})
	}
	return nil
}

func (p *Processor) openLogger(l *logger) error {
	namePtr, err := windows.UTF16PtrFromString(l.name)
	if err != nil {
		return err
	}

	logfile := &winapi.EventTraceLogfile{
		LoggerName: namePtr,
		LogFileMode: winapi.ProcessTraceModeRealTime | winapi.ProcessTraceModeEventRecord,
	}
	logfile.EventCallback = syscall.NewCallback(func(record *winapi.EventRecord) uintptr {
		p.handleEvent(l, record)
		return 0
	})

	handle := winapi.OpenTrace(logfile)
	if !handle.IsValid() {
		return fmt.Errorf("OpenTraceW returned an invalid handle")
	}
	l.handle = handle
	l.logfile = logfile
	return nil
}

// handleEvent is the consumer callback. It fills in a logger's start-time
// on first event if the kernel didn't populate one, applies the one
// filtering rule, and forwards everything else to the sink. Panics are
// recovered and logged — they must never unwind into the kernel's own
// calling thread, per spec.md §4.6.
func (p *Processor) handleEvent(l *logger, record *winapi.EventRecord) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic in trace processor callback", zap.Any("recover", r), zap.String("logger", l.name))
		}
	}()

	if atomic.CompareAndSwapInt32(&l.started, 0, 1) {
		fillStartTime(l.logfile, record)
	}

	if record.EventHeader.ProviderID == syntheticEventTraceGUID &&
		record.EventHeader.EventDescriptor.Opcode == opcodeInfo {
		return
	}

	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if sink == nil {
		return
	}
	if err := sink.Append(record); err != nil {
		p.log.Warn("sink append failed", zap.Error(err), zap.String("logger", l.name))
	}
}

// fillStartTime ensures the logger's header carries a non-zero start time,
// reading either QPC or system time depending on the log's RAW_TIMESTAMP
// mode, per spec.md §4.6.
func fillStartTime(logfile *winapi.EventTraceLogfile, record *winapi.EventRecord) {
	if logfile.LogfileHeader.StartTime != 0 {
		return
	}
	if logfile.LogFileMode&winapi.ProcessTraceModeRawTimestamp != 0 {
		logfile.LogfileHeader.StartTime = winapi.QueryPerformanceCounter()
		return
	}
	var ft windows.Filetime
	windows.GetSystemTimeAsFileTime(&ft)
	logfile.LogfileHeader.StartTime = int64(ft.HighDateTime)<<32 | int64(ft.LowDateTime)
}

func (p *Processor) pump(l *logger) error {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic in ProcessTrace pump", zap.Any("recover", r), zap.String("logger", l.name))
		}
	}()
	return winapi.ProcessTrace(l.handle)
}

// Stop closes every trace handle, which unblocks the pumping goroutines,
// then joins them, per spec.md §4.6.
func (p *Processor) Stop() error {
	p.mu.Lock()
	p.closeAllLocked()
	group := p.group
	p.mu.Unlock()

	if group != nil {
		return group.Wait()
	}
	return nil
}

func (p *Processor) closeAllLocked() {
	for _, l := range p.loggers {
		if l.handle.IsValid() {
			_ = winapi.CloseTrace(l.handle)
		}
	}
}

// IsEndOfTracing reports whether no pumping goroutines are running, per
// spec.md §4.6's is_end_of_tracing contract.
func (p *Processor) IsEndOfTracing() bool {
	p.mu.Lock()
	started := p.group != nil
	p.mu.Unlock()
	if !started {
		return true
	}
	return atomic.LoadInt32(&p.running) == 0
}

// LogFileHeader returns the header of the first logger: start-time,
// PerfFreq, and pointer size, used by downstream timestamp conversion per
// spec.md §4.6.
func (p *Processor) LogFileHeader() (winapi.TraceLogfileHeader, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.loggers) == 0 || p.loggers[0].logfile == nil {
		return winapi.TraceLogfileHeader{}, false
	}
	return p.loggers[0].logfile.LogfileHeader, true
}
