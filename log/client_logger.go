package log

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ClientLogger attaches a fixed client ID to every log event so one
// connection can be traced through the whole receive/dispatch pipeline.
// Whitelisted clients bypass level filtering entirely, and may optionally be
// mirrored into a dedicated per-client log file.
type ClientLogger struct {
	*ServerLogger
	clientID    uint16
	inWhiteList bool
}

// NewClientLogger creates a logger for one connected client. Output always
// goes to the configured appenders; with ClientFileLog enabled an extra file
// appender writes to "<base>_<id><ext>".
func NewClientLogger(cfg *LogCfg, clientID uint16) *ClientLogger {
	if cfg == nil {
		cfg = getDefaultCfg()
	}

	logger := &ServerLogger{
		callerSkip:        cfg.CallerSkip,
		levelChange:       newLevelChange(cfg.LevelChange),
		enabledCallerInfo: cfg.EnabledCallerInfo,
		currentConfig:     cfg,
	}
	logger.minLevel.Store(uint32(cfg.LogLevel))

	clientLogger := &ClientLogger{
		ServerLogger: logger,
		clientID:     clientID,
		inWhiteList:  cfg.IsInWhiteList(clientID),
	}

	logger.eventPool = &sync.Pool{
		New: func() any {
			return newEvent(logger)
		},
	}

	if cfg.ConsoleAppender {
		logger.AddAppender(NewConsoleAppender())
	}
	if cfg.FileAppender {
		logger.AddAppender(NewFileAppender(cfg))
	}

	if cfg.ClientFileLog {
		clientCfg := *cfg
		ext := filepath.Ext(clientCfg.LogPath)
		base := strings.TrimSuffix(clientCfg.LogPath, ext)
		clientCfg.LogPath = fmt.Sprintf("%s_%d%s", base, clientID, ext)
		clientLogger.AddAppender(NewFileAppender(&clientCfg))
	}

	return clientLogger
}

func (x *ClientLogger) log(level Level) *LogEvent {
	var logEvent *LogEvent
	if x.inWhiteList {
		// Whitelisted clients bypass level filtering entirely.
		logEvent = x.ServerLogger.newEvent()
		logEvent.level = level
		t := time.Now()
		logEvent.Time("time", &t)
		logEvent.Str("level", level.String())
	} else {
		logEvent = x.ServerLogger.log(level)
	}
	if logEvent == nil {
		return nil
	}
	return logEvent.Uint16("client", x.clientID)
}

// IgnoreCheckLevel bypasses level filtering for whitelisted clients so a
// single connection can be debugged verbosely in production.
func (x *ClientLogger) IgnoreCheckLevel() bool {
	return x.inWhiteList
}

// Debug creates a new debug-level log event tagged with the client ID.
func (x *ClientLogger) Debug() *LogEvent {
	return x.log(DebugLevel)
}

// Info creates a new info-level log event tagged with the client ID.
func (x *ClientLogger) Info() *LogEvent {
	return x.log(InfoLevel)
}

// Warn creates a new warning-level log event tagged with the client ID.
func (x *ClientLogger) Warn() *LogEvent {
	return x.log(WarnLevel)
}

// Error creates a new error-level log event tagged with the client ID.
func (x *ClientLogger) Error() *LogEvent {
	return x.log(ErrorLevel)
}

// Fatal creates a new fatal-level log event tagged with the client ID.
func (x *ClientLogger) Fatal() *LogEvent {
	return x.log(FatalLevel)
}
