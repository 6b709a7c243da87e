//go:build windows

// Command etwtrace is a demo host for the tracekit core: it configures one
// kernel session from command-line provider GUIDs, pumps it through the
// processor into a trace log, and prints each decoded event's formatted
// message as it arrives. It plays the same role as bi-zone-etw's
// examples/tracer, generalized from "one provider, one GUID argument" to
// the full spec.md §4.5 provider set and wired to the complete pipeline
// (schema registry, cache, decoder, trace log, watchdog) instead of a bare
// session.Process callback.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	etw "github.com/etwkit/tracekit"
	"github.com/etwkit/tracekit/eventinfocache"
	"github.com/etwkit/tracekit/processor"
	"github.com/etwkit/tracekit/schemaregistry"
	"github.com/etwkit/tracekit/session"
	"github.com/etwkit/tracekit/tracelog"
	"github.com/etwkit/tracekit/watchdog"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		providerFlags = pflag.StringArray("provider", nil, "provider GUID to enable (repeatable)")
		manifestFlags = pflag.StringArray("manifest", nil, "provider manifest path to load (repeatable)")
		level         = pflag.Uint8("level", 255, "trace level (0-255) applied to every --provider")
		matchAny      = pflag.Uint64("match-any", ^uint64(0), "MatchAnyKeyword applied to every --provider")
		sessionName   = pflag.String("session-name", "", "kernel session name (random if empty)")
		bufferSizeKB  = pflag.Uint32("buffer-size-kb", 64, "per-buffer size in KiB")
		minBuffers    = pflag.Uint32("min-buffers", 4, "minimum number of buffers")
		maxBuffers    = pflag.Uint32("max-buffers", 16, "maximum number of buffers")
		withWatchdog  = pflag.Bool("watchdog", false, "supervise the session with the etwwatchdog helper")
		watchdogExe   = pflag.String("watchdog-exe", "", "path to the etwwatchdog helper (default: next to this executable)")
		verbose       = pflag.BoolP("verbose", "v", false, "enable debug logging, including per-event spew dumps")
	)
	pflag.Parse()

	if len(*providerFlags) == 0 {
		fmt.Fprintln(os.Stderr, "etwtrace: at least one --provider GUID is required")
		return 2
	}

	log, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "etwtrace: failed to build logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	providers, err := parseProviders(*providerFlags, *level, *matchAny)
	if err != nil {
		log.Error("invalid --provider", zap.Error(err))
		return 2
	}

	var token *schemaregistry.Token
	if len(*manifestFlags) > 0 {
		token, err = schemaregistry.NewToken(schemaregistry.Global(), *manifestFlags)
		if err != nil {
			log.Error("failed to load manifests", zap.Error(err))
			return 1
		}
		defer token.Close()
	}

	cache, err := eventinfocache.New(eventinfocache.DefaultCapacity)
	if err != nil {
		log.Error("failed to create event info cache", zap.Error(err))
		return 1
	}

	tlog := tracelog.New(cache, token, 8)
	tlog.SetLogger(log)
	tlog.OnChanged(func(count int) { printLatest(tlog, count) })

	name := *sessionName
	if name == "" {
		name = etw.RandomSessionName()
	}

	controller := session.New(name, etw.TraceProperties{
		SessionGUID:    etw.NewSessionGUID(),
		BufferSizeKB:   *bufferSizeKB,
		MinimumBuffers: *minBuffers,
		MaximumBuffers: *maxBuffers,
	}, log)

	for _, d := range providers {
		if err := controller.AddProvider(d); err != nil {
			log.Error("failed to configure provider", zap.Error(err))
			return 1
		}
		if err := controller.EnableProvider(d.GUID); err != nil {
			log.Error("failed to enable provider", zap.Error(err))
			return 1
		}
	}

	var wd *watchdog.Watchdog
	if *withWatchdog {
		wd = watchdog.New(name, *watchdogExe, log)
		if err := wd.Start(); err != nil {
			log.Error("failed to start watchdog", zap.Error(err))
			return 1
		}
	}

	if err := controller.Start(); err != nil {
		log.Error("failed to start session", zap.Error(err))
		return 1
	}

	proc := processor.New([]string{name}, log)
	proc.SetSink(tlog)
	if err := proc.Start(); err != nil {
		log.Error("failed to start processor", zap.Error(err))
		_ = controller.Stop()
		return 1
	}

	go func() {
		time.Sleep(200 * time.Millisecond)
		if hdr, ok := proc.LogFileHeader(); ok && hdr.PointerSize != 0 {
			tlog.SetPointerSize(uintptr(hdr.PointerSize))
		}
	}()

	log.Info("session running", zap.String("name", name), zap.Int("providers", len(providers)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh

	log.Info("shutting down")
	if err := proc.Stop(); err != nil {
		log.Warn("processor stop failed", zap.Error(err))
	}
	if err := controller.Stop(); err != nil {
		log.Warn("session stop failed", zap.Error(err))
	}
	if wd != nil {
		if err := wd.Stop(); err != nil {
			log.Warn("watchdog stop failed", zap.Error(err))
		}
	}
	return 0
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func parseProviders(guids []string, level uint8, matchAny uint64) ([]etw.ProviderDescriptor, error) {
	out := make([]etw.ProviderDescriptor, 0, len(guids))
	for _, s := range guids {
		guid, err := windows.GUIDFromString(s)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		out = append(out, etw.ProviderDescriptor{
			GUID:            guid,
			Level:           level,
			MatchAnyKeyword: matchAny,
		})
	}
	return out, nil
}

// printLatest prints every event's decoded message appended since the last
// notification count this process has seen.
var lastPrinted int

func printLatest(tlog *tracelog.Log, count int) {
	enc := json.NewEncoder(os.Stdout)
	for i := lastPrinted; i < count; i++ {
		ev, ok := tlog.Get(i)
		if !ok {
			continue
		}
		_ = enc.Encode(map[string]any{
			"index":   i,
			"message": ev.Decoded.Message,
		})
	}
	lastPrinted = count
}
