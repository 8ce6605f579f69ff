// Package log implements the structured logging layer used across the
// embernet server core. It favors a pooled, fluent event API so the hot
// receive path can log without allocating, and supports hot-reload of the
// logging configuration.
package log

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lcx/embernet/config"
)

// Logger is the minimal surface shared by the server-wide logger and the
// per-client logger.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	Fatal() *LogEvent
	IgnoreCheckLevel() bool
	GetAppender() []LogAppender
	AddAppender(appender LogAppender)
	OnEventEnd(e *LogEvent)
}

var _defaultLogger *ServerLogger

func init() {
	_defaultLogger = NewLogger(nil)
}

// AddAppender adds a new log appender to the default logger.
func AddAppender(appender LogAppender) {
	_defaultLogger.AddAppender(appender)
}

// Refresh triggers a refresh operation on all appenders of the default logger.
func Refresh() {
	_defaultLogger.Refresh()
}

// SetDefaultLogger replaces the default logger with a custom instance.
func SetDefaultLogger(logger *ServerLogger) {
	_defaultLogger = logger
}

// InitializeWithConfigManager initializes the default logger from the given
// configuration manager and registers it for hot-reload.
func InitializeWithConfigManager(configManager config.ConfigManager) error {
	if configManager == nil {
		return nil
	}

	logCfg := &LogCfg{}
	if err := configManager.LoadConfig("logger", logCfg); err != nil {
		return err
	}

	SetDefaultLogger(NewLoggerWithConfigManager(logCfg, configManager))
	return nil
}

// Initialize initializes the default logger using the singleton ConfigManager.
func Initialize() error {
	return InitializeWithConfigManager(config.GetInstance())
}

// Debug creates a new debug-level log event using the default logger.
func Debug() *LogEvent {
	return _defaultLogger.Debug()
}

// Info creates a new info-level log event using the default logger.
func Info() *LogEvent {
	return _defaultLogger.Info()
}

// Warn creates a new warning-level log event using the default logger.
func Warn() *LogEvent {
	return _defaultLogger.Warn()
}

// Error creates a new error-level log event using the default logger.
func Error() *LogEvent {
	return _defaultLogger.Error()
}

// Fatal creates a new fatal-level log event using the default logger.
func Fatal() *LogEvent {
	return _defaultLogger.Fatal()
}

type callerInfo struct {
	file     string
	function string
	line     int
	str      string
}

func newCallerInfo(file, function string, line int) *callerInfo {
	return &callerInfo{
		file:     file,
		function: function,
		line:     line,
		str:      file + ":" + strconv.Itoa(line) + " " + function,
	}
}

func (c *callerInfo) String() string {
	return c.str
}

var _unknownCallerInfo = newCallerInfo("unknown", "unknown", 0)

// ServerLogger is the process-wide logger for the networking core. It keeps
// the logging path lock-free, reuses LogEvent instances through a sync.Pool
// and supports per-file/per-line level overrides for targeted debugging.
type ServerLogger struct {
	appenders         []LogAppender
	minLevel          atomic.Uint32
	callerSkip        int
	eventPool         *sync.Pool
	levelChange       *levelChange
	callerCache       sync.Map
	enabledCallerInfo bool
	configMutex       sync.RWMutex
	currentConfig     *LogCfg
}

// NewLogger creates a new ServerLogger. A nil cfg selects defaults
// (debug level, console output).
func NewLogger(cfg *LogCfg) *ServerLogger {
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

	logger.eventPool = &sync.Pool{
		New: func() any {
			return newEvent(logger)
		},
	}

	if cfg.FileAppender {
		logger.AddAppender(NewFileAppender(cfg))
	}
	if cfg.ConsoleAppender {
		logger.AddAppender(NewConsoleAppender())
	}

	return logger
}

// NewLoggerWithConfigManager creates a ServerLogger registered for
// configuration hot-reload.
func NewLoggerWithConfigManager(cfg *LogCfg, configManager config.ConfigManager) *ServerLogger {
	logger := NewLogger(cfg)
	if configManager != nil {
		configManager.AddChangeListener(logger)
	}
	return logger
}

// GetConfigName implements the config.ConfigChangeListener interface.
func (x *ServerLogger) GetConfigName() string {
	return "logger"
}

// OnConfigChanged implements the config.ConfigChangeListener interface,
// applying a reloaded logging configuration without a restart.
func (x *ServerLogger) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "logger" {
		return nil
	}

	newLogCfg, ok := newConfig.(*LogCfg)
	if !ok {
		return nil
	}

	x.configMutex.Lock()
	defer x.configMutex.Unlock()

	x.minLevel.Store(uint32(newLogCfg.LogLevel))
	x.callerSkip = newLogCfg.CallerSkip
	x.enabledCallerInfo = newLogCfg.EnabledCallerInfo
	if newLogCfg.LevelChange != nil {
		x.levelChange = newLevelChange(newLogCfg.LevelChange)
	}
	x.currentConfig = newLogCfg

	x.Refresh()
	return nil
}

// GetCurrentConfig returns the configuration currently in effect.
func (x *ServerLogger) GetCurrentConfig() *LogCfg {
	x.configMutex.RLock()
	defer x.configMutex.RUnlock()
	return x.currentConfig
}

func (x *ServerLogger) checkLevel(level Level) bool {
	return Level(x.minLevel.Load()) <= level
}

// AddAppender adds a log appender. Multiple appenders may be active at once.
func (x *ServerLogger) AddAppender(appender LogAppender) {
	x.appenders = append(x.appenders, appender)
}

// GetAppender returns the registered appenders.
func (x *ServerLogger) GetAppender() []LogAppender {
	return x.appenders
}

// Refresh triggers a refresh on all registered appenders, e.g. after
// external log rotation.
func (x *ServerLogger) Refresh() {
	for _, appender := range x.appenders {
		appender.Refresh()
	}
}

// IgnoreCheckLevel reports whether level filtering is bypassed. Always false
// for the server-wide logger; the per-client logger overrides this for
// whitelisted clients.
func (x *ServerLogger) IgnoreCheckLevel() bool {
	return false
}

func (x *ServerLogger) newEvent() *LogEvent {
	e := x.eventPool.Get().(*LogEvent)
	e.Reset()
	return e
}

// OnEventEnd writes the finalized event to every appender and returns it to
// the pool. Fatal events panic after the write so nothing is lost.
func (x *ServerLogger) OnEventEnd(e *LogEvent) {
	for _, appender := range x.appenders {
		appender.Write(e.buf.Bytes())
	}

	if e.level == FatalLevel {
		panic("fatal log event")
	}

	x.eventPool.Put(e)
}

// Debug creates a new debug-level log event.
func (x *ServerLogger) Debug() *LogEvent {
	return x.log(DebugLevel)
}

// Info creates a new info-level log event.
func (x *ServerLogger) Info() *LogEvent {
	return x.log(InfoLevel)
}

// Warn creates a new warning-level log event.
func (x *ServerLogger) Warn() *LogEvent {
	return x.log(WarnLevel)
}

// Error creates a new error-level log event.
func (x *ServerLogger) Error() *LogEvent {
	return x.log(ErrorLevel)
}

// Fatal creates a new fatal-level log event. The process panics after the
// event is written.
func (x *ServerLogger) Fatal() *LogEvent {
	return x.log(FatalLevel)
}

// getCallerInfo resolves and caches file/function/line for the logging call
// site. Resolution happens at most once per program counter.
func (x *ServerLogger) getCallerInfo() *callerInfo {
	pc, file, line, ok := runtime.Caller(3 + x.callerSkip)
	if !ok {
		return _unknownCallerInfo
	}

	if cached, found := x.callerCache.Load(pc); found {
		return cached.(*callerInfo)
	}

	funcName := runtime.FuncForPC(pc).Name()
	function := funcName
	if dotIdx := strings.LastIndexByte(funcName, '.'); dotIdx != -1 {
		function = funcName[dotIdx+1:]
	}

	// Keep only the last two path elements of the file.
	if lastSlash := strings.LastIndexByte(file, '/'); lastSlash > 0 {
		if secondLastSlash := strings.LastIndexByte(file[:lastSlash], '/'); secondLastSlash >= 0 {
			file = file[secondLastSlash+1:]
		}
	}

	c := newCallerInfo(file, function, line)
	x.callerCache.Store(pc, c)
	return c
}

// log prepares a new log event with the common fields, returning nil when
// the level is filtered out.
func (x *ServerLogger) log(level Level) *LogEvent {
	var info *callerInfo
	if !x.IgnoreCheckLevel() {
		if !x.checkLevel(level) {
			if x.levelChange.Empty() {
				return nil
			}
			// A per-file/per-line override may still let this event through.
			info = x.getCallerInfo()
			level = x.levelChange.GetLevel(info.file, info.line, level)
		}
	}

	if !x.checkLevel(level) {
		return nil
	}

	e := x.newEvent()
	e.level = level

	t := time.Now()
	e.Time("time", &t)
	e.Str("level", level.String())

	if x.enabledCallerInfo {
		if info == nil {
			info = x.getCallerInfo()
		}
		e.Str("caller", info.String())
	}

	return e
}
