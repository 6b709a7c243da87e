//go:build windows

package session

import (
	"context"
	"testing"
	"time"

	winevt "github.com/Microsoft/go-winio/pkg/etw"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sys/windows"

	etw "github.com/etwkit/tracekit"
)

// testProviderSuite mirrors bi-zone-etw's session_test.go testProvider: a
// synthetic TraceLogging provider from go-winio/pkg/etw used to generate
// real events a live Controller can subscribe to.
type testProviderSuite struct {
	suite.Suite

	provider *winevt.Provider
	guid     windows.GUID
}

func (s *testProviderSuite) SetupSuite() {
	provider, err := winevt.NewProvider("TraceKitTestProvider", nil)
	s.Require().NoError(err, "failed to initialize test provider")
	s.provider = provider
	s.guid = windows.GUID(provider.ID)
}

func (s *testProviderSuite) TearDownSuite() {
	s.Require().NoError(s.provider.Close())
}

func (s *testProviderSuite) generateEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_ = s.provider.WriteEvent(
				"TestEvent",
				winevt.WithEventOpts(winevt.WithLevel(winevt.LevelInfo)),
				winevt.WithFields(winevt.StringField("Field", "value")),
			)
		}
	}
}

func (s *testProviderSuite) TestStartStop() {
	ctx, cancel := context.WithCancel(context.Background())
	go s.generateEvents(ctx)
	defer cancel()

	c := New("tracekit-test-"+etw.RandomSessionName(), etw.TraceProperties{
		SessionGUID:    etw.NewSessionGUID(),
		BufferSizeKB:   64,
		MinimumBuffers: 4,
		MaximumBuffers: 8,
	}, nil)

	s.Require().NoError(c.AddProvider(etw.ProviderDescriptor{
		GUID:            s.guid,
		Level:           255,
		MatchAnyKeyword: 0xFFFFFFFFFFFFFFFF,
	}))
	s.Require().NoError(c.EnableProvider(s.guid))

	s.Require().NoError(c.Start())
	s.Require().Equal(Running, c.State())

	time.Sleep(200 * time.Millisecond)

	s.Require().NoError(c.Stop())
	s.Require().Equal(Stopped, c.State())
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(testProviderSuite))
}
