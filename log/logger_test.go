package log

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureAppender buffers written entries for assertions.
type captureAppender struct {
	mu      sync.Mutex
	entries []string
}

func (a *captureAppender) Write(p []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, string(p))
}

func (a *captureAppender) Refresh() {}

func (a *captureAppender) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.entries...)
}

// Tests level filtering and the structured output fields.
func TestServerLogger_LevelFilterAndFields(t *testing.T) {
	capture := &captureAppender{}
	logger := NewLogger(&LogCfg{LogLevel: InfoLevel})
	logger.AddAppender(capture)

	logger.Debug().Str("k", "v").Msg("filtered out")
	assert.Empty(t, capture.all())

	logger.Info().Str("group", "world").Uint16("server", 12).Msg("server joined")

	entries := capture.all()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0], `"level":"info"`)
	assert.Contains(t, entries[0], `"group":"world"`)
	assert.Contains(t, entries[0], `"server":12`)
	assert.Contains(t, entries[0], `"msg":"server joined"`)
	assert.True(t, strings.HasSuffix(entries[0], "}\n"))
}

// Tests that Err adds nothing for nil and quotes the error text otherwise.
func TestLogEvent_Err(t *testing.T) {
	capture := &captureAppender{}
	logger := NewLogger(&LogCfg{LogLevel: DebugLevel})
	logger.AddAppender(capture)

	logger.Warn().Err(nil).Msg("no error")
	logger.Warn().Err(errors.New("boom")).Msg("with error")

	entries := capture.all()
	require.Len(t, entries, 2)
	assert.NotContains(t, entries[0], `"error"`)
	assert.Contains(t, entries[1], `"error":"boom"`)
}

// Tests that a fatal event panics after being written.
func TestServerLogger_FatalPanics(t *testing.T) {
	capture := &captureAppender{}
	logger := NewLogger(&LogCfg{LogLevel: DebugLevel})
	logger.AddAppender(capture)

	assert.Panics(t, func() {
		logger.Fatal().Msg("unrecoverable")
	})
	require.Len(t, capture.all(), 1)
}

// Tests the per-file/per-line level override resolution order.
func TestLevelChange_Resolution(t *testing.T) {
	lc := newLevelChange([]LevelChangeEntry{
		{File: "net/client.go", Level: DebugLevel},
		{File: "net/server_group.go", Line: 42, Level: WarnLevel},
	})
	assert.False(t, lc.Empty())

	assert.Equal(t, DebugLevel, lc.GetLevel("net/client.go", 10, ErrorLevel))
	assert.Equal(t, WarnLevel, lc.GetLevel("net/server_group.go", 42, ErrorLevel))
	assert.Equal(t, ErrorLevel, lc.GetLevel("net/server_group.go", 43, ErrorLevel))
	assert.Equal(t, InfoLevel, lc.GetLevel("net/other.go", 1, InfoLevel))

	assert.True(t, newLevelChange(nil).Empty())
}

// Tests whitelist membership checks on the logging configuration.
func TestLogCfg_WhiteList(t *testing.T) {
	cfg := &LogCfg{ClientWhiteList: []uint16{7, 9}}
	assert.True(t, cfg.IsInWhiteList(7))
	assert.True(t, cfg.IsInWhiteList(9))
	assert.False(t, cfg.IsInWhiteList(8))

	empty := &LogCfg{}
	assert.False(t, empty.IsInWhiteList(7))
}

// Tests that the per-client logger tags every event with the client ID and
// that whitelisted clients bypass level filtering.
func TestClientLogger_TagAndWhitelist(t *testing.T) {
	capture := &captureAppender{}
	cl := NewClientLogger(&LogCfg{LogLevel: ErrorLevel, ClientWhiteList: []uint16{9}}, 9)
	cl.AddAppender(capture)

	assert.True(t, cl.IgnoreCheckLevel())
	cl.Debug().Str("k", "v").Msg("whitelisted debug")

	entries := capture.all()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0], `"client":9`)

	quiet := &captureAppender{}
	other := NewClientLogger(&LogCfg{LogLevel: ErrorLevel}, 3)
	other.AddAppender(quiet)
	assert.False(t, other.IgnoreCheckLevel())
	other.Debug().Msg("filtered")
	assert.Empty(t, quiet.all())
}
