//go:build windows

// Package session implements the Session Controller of spec.md §4.5: one
// kernel trace session, its provider filter translation, and its
// Configured → Running → Stopped lifecycle. It generalizes bi-zone-etw's
// session.go (NewSession/createETWSession/subscribeToProvider/
// unsubscribeFromProvider/stopSession) from "one provider per session,
// bound at construction" into the spec's "set of providers, each
// independently add/remove/enable/disable" model, and replaces its cgo
// calls to StartTraceW/EnableTraceEx/ControlTraceW with the pure-Go
// internal/winapi bindings.
package session

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	etw "github.com/etwkit/tracekit"
	"github.com/etwkit/tracekit/internal/winapi"
)

// State is the session's lifecycle state, per spec.md §4.5's state
// machine.
type State int

const (
	Configured State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Configured:
		return "configured"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats mirrors the subset of EVENT_TRACE_PROPERTIES query() reports, per
// spec.md §4.5's query(stats) contract.
type Stats struct {
	NumberOfBuffers     uint32
	FreeBuffers         uint32
	EventsLost          uint32
	BuffersWritten      uint32
	LogBuffersLost      uint32
	RealTimeBuffersLost uint32
	LoggerThreadID      uintptr
}

// Controller owns one kernel trace session and the set of providers
// enabled on it.
type Controller struct {
	mu sync.Mutex

	name       string
	props      etw.TraceProperties
	providers  map[windows.GUID]etw.ProviderDescriptor
	enabled    map[windows.GUID]bool
	state      State
	handle     winapi.TraceHandle
	propsBlob  []byte
	flushTimer *time.Timer
	log        *zap.Logger
}

// New creates a Configured controller for the given session name and
// properties. Call AddProvider to configure providers before Start.
func New(name string, props etw.TraceProperties, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	if name == "" {
		name = etw.RandomSessionName()
	}
	return &Controller{
		name:      name,
		props:     props,
		providers: make(map[windows.GUID]etw.ProviderDescriptor),
		enabled:   make(map[windows.GUID]bool),
		state:     Configured,
		log:       log,
	}
}

// Name returns the session name.
func (c *Controller) Name() string { return c.name }

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Handle returns the underlying kernel trace handle; zero/invalid when not
// Running.
func (c *Controller) Handle() winapi.TraceHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// AddProvider upserts a provider descriptor. If the session is already
// Running and this provider was previously enabled, its enable is
// re-applied with the new filters — spec.md §4.5's add_provider contract.
func (c *Controller) AddProvider(d etw.ProviderDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	wasEnabled := c.enabled[d.GUID]
	c.providers[d.GUID] = d

	if c.state == Running && wasEnabled {
		return c.enableLocked(d)
	}
	return nil
}

// RemoveProvider disables the provider (if enabled) then drops it from the
// configured set, per spec.md §4.5's remove_provider contract.
func (c *Controller) RemoveProvider(id windows.GUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enabled[id] {
		if err := c.disableLocked(id); err != nil {
			return err
		}
	}
	delete(c.providers, id)
	return nil
}

// EnableProvider marks a configured provider enabled; if the session is
// Running, the kernel enable call is issued immediately. Idempotent.
func (c *Controller) EnableProvider(id windows.GUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enabled[id] {
		return nil
	}
	d, ok := c.providers[id]
	if !ok {
		return fmt.Errorf("session: provider %s not configured", guidString(id))
	}
	if c.state == Running {
		if err := c.enableLocked(d); err != nil {
			return err
		}
	}
	c.enabled[id] = true
	return nil
}

// DisableProvider marks a provider disabled; if Running, issues the kernel
// disable call immediately. Idempotent.
func (c *Controller) DisableProvider(id windows.GUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled[id] {
		return nil
	}
	return c.disableLocked(id)
}

func (c *Controller) disableLocked(id windows.GUID) error {
	if c.state == Running {
		guid := id
		if err := winapi.EnableTraceEx2(
			c.handle, &guid, winapi.EventControlCodeDisableProvider,
			0, 0, 0, 0, nil,
		); err != nil {
			return fmt.Errorf("session: disable provider %s: %w", guidString(id), err)
		}
	}
	delete(c.enabled, id)
	return nil
}

// Start opens the kernel session, enables every already-marked-enabled
// provider, and starts the flush timer if the properties require a
// user-space one. Start failure leaves the controller Configured — no
// enables were applied, per spec.md §4.5.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Configured {
		return fmt.Errorf("session: Start called in state %s", c.state)
	}

	blob, err := buildPropertiesBlob(c.name, c.props)
	if err != nil {
		return err
	}
	c.propsBlob = blob

	namePtr, err := windows.UTF16PtrFromString(c.name)
	if err != nil {
		return err
	}

	handle, err := winapi.StartTrace(namePtr, c.propsBlob)
	if err == windows.ERROR_ALREADY_EXISTS {
		// spec.md §7: on name-in-use, first try to stop the stale
		// session by name, then retry StartTrace once before giving up.
		_ = winapi.ControlTrace(0, namePtr, c.propsBlob, winapi.EventTraceControlStop)
		handle, err = winapi.StartTrace(namePtr, c.propsBlob)
		if err == windows.ERROR_ALREADY_EXISTS {
			return etw.ExistsError{SessionName: c.name}
		}
	}
	if err != nil {
		return fmt.Errorf("session: StartTrace: %w", err)
	}
	c.handle = handle
	c.state = Running

	for id := range c.enabled {
		d := c.providers[id]
		if err := c.enableLocked(d); err != nil {
			c.log.Warn("enable provider failed at start", zap.String("guid", guidString(id)), zap.Error(err))
		}
	}

	if !c.props.UsesBuiltinFlushTimer() {
		period := c.props.EffectiveFlushPeriod()
		c.flushTimer = time.AfterFunc(period, c.userspaceFlush(period))
	}

	return nil
}

func (c *Controller) userspaceFlush(period time.Duration) func() {
	var tick func()
	tick = func() {
		if err := c.Flush(); err != nil {
			c.log.Warn("user-space flush failed", zap.Error(err))
		}
		c.mu.Lock()
		running := c.state == Running
		c.mu.Unlock()
		if running {
			c.flushTimer = time.AfterFunc(period, tick)
		}
	}
	return tick
}

// Stop stops the user-space flush timer if any, issues the kernel stop
// (tolerating MORE_DATA), and zeroes the handle unconditionally, per
// spec.md §4.5.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}

	if c.state != Running {
		c.state = Stopped
		return nil
	}

	namePtr, _ := windows.UTF16PtrFromString(c.name)
	err := winapi.ControlTrace(c.handle, namePtr, c.propsBlob, winapi.EventTraceControlStop)
	c.handle = 0
	c.state = Stopped
	if err != nil {
		return fmt.Errorf("session: ControlTrace(stop): %w", err)
	}
	return nil
}

// Flush issues a kernel-session flush.
func (c *Controller) Flush() error {
	c.mu.Lock()
	handle := c.handle
	blob := c.propsBlob
	name := c.name
	running := c.state == Running
	c.mu.Unlock()

	if !running {
		return nil
	}
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return err
	}
	const eventTraceControlFlush = 3
	return winapi.ControlTrace(handle, namePtr, blob, eventTraceControlFlush)
}

// Query populates Stats from the kernel session's current
// EVENT_TRACE_PROPERTIES, per spec.md §4.5's query(stats) contract.
func (c *Controller) Query() (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Running {
		return Stats{}, fmt.Errorf("session: Query called in state %s", c.state)
	}

	const eventTraceControlQuery = 0
	namePtr, err := windows.UTF16PtrFromString(c.name)
	if err != nil {
		return Stats{}, err
	}
	if err := winapi.ControlTrace(c.handle, namePtr, c.propsBlob, eventTraceControlQuery); err != nil {
		return Stats{}, fmt.Errorf("session: ControlTrace(query): %w", err)
	}

	hdr := winapi.PropertiesHeader(c.propsBlob)
	return Stats{
		NumberOfBuffers:     hdr.NumberOfBuffers,
		FreeBuffers:         hdr.FreeBuffers,
		EventsLost:          hdr.EventsLost,
		BuffersWritten:      hdr.BuffersWritten,
		LogBuffersLost:      hdr.LogBuffersLost,
		RealTimeBuffersLost: hdr.RealTimeBuffersLost,
		LoggerThreadID:      hdr.LoggerThreadID,
	}, nil
}

func guidString(g windows.GUID) string {
	return fmt.Sprintf("{%08X-%04X-%04X-%X-%X}", g.Data1, g.Data2, g.Data3, g.Data4[:2], g.Data4[2:])
}
