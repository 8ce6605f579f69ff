package log

// LogCfg represents logging configuration for high-throughput game servers.
// It covers output destinations, rotation, async writing and targeted
// per-client debugging.
type LogCfg struct {
	// LogPath specifies the target log file path for file-based logging.
	LogPath string `mapstructure:"path"`

	// LogLevel defines the minimum log level for filtering log entries.
	// Supports hot-reload without service restart.
	LogLevel Level `mapstructure:"level"`

	// FileSplitMB determines the file rotation threshold in megabytes.
	FileSplitMB int `mapstructure:"splitmb"`

	// IsAsync enables asynchronous log writing to keep the transport
	// goroutines off the disk I/O path.
	IsAsync bool `mapstructure:"isasync"`

	// AsyncCacheSize limits the maximum buffered log entries in async mode.
	AsyncCacheSize int `mapstructure:"asynccachesize"`

	// AsyncWriteMillSec defines the async flush interval in milliseconds.
	AsyncWriteMillSec int `mapstructure:"asyncwritemillsec"`

	// CallerSkip specifies extra stack frames to skip for caller information,
	// for wrapper layers above the logger.
	CallerSkip int `mapstructure:"callerSkip"`

	// FileAppender enables file-based logging output.
	FileAppender bool `mapstructure:"fileAppender"`

	// ConsoleAppender enables console (stdout) logging output.
	ConsoleAppender bool `mapstructure:"consoleAppender"`

	// EnabledCallerInfo captures file/function/line for every event.
	EnabledCallerInfo bool `mapstructure:"enabledCallerInfo"`

	// LevelChange enables fine-grained log level control for specific code
	// locations, adjustable at runtime through config hot-reload.
	LevelChange []LevelChangeEntry `mapstructure:"levelChange"`

	// ClientWhiteList lists client IDs that bypass log level filtering.
	// Enables targeted debugging of a single connection in production.
	ClientWhiteList []uint16 `mapstructure:"clientWhiteList"`

	// ClientFileLog additionally writes ClientLogger output to a
	// per-client log file next to the main one.
	ClientFileLog bool `mapstructure:"clientFileLog"`

	// clientWhiteListSet is an internal cache for O(1) whitelist lookups.
	clientWhiteListSet map[uint16]struct{} `mapstructure:"-"`
}

// GetName implements the config.Config interface.
func (cfg *LogCfg) GetName() string {
	return "logger"
}

// Validate implements the config.Config interface.
func (cfg *LogCfg) Validate() error {
	return nil
}

// IsInWhiteList checks if a client ID exists in the whitelist.
func (cfg *LogCfg) IsInWhiteList(clientID uint16) bool {
	if len(cfg.clientWhiteListSet) == 0 && len(cfg.ClientWhiteList) != 0 {
		cfg.clientWhiteListSet = make(map[uint16]struct{}, len(cfg.ClientWhiteList))
		for _, id := range cfg.ClientWhiteList {
			cfg.clientWhiteListSet[id] = struct{}{}
		}
	}

	_, exists := cfg.clientWhiteListSet[clientID]
	return exists
}

var _defaultCfg = &LogCfg{
	LogPath:         "./embernet.log",
	LogLevel:        DebugLevel,
	FileSplitMB:     50,
	IsAsync:         true,
	CallerSkip:      1,
	FileAppender:    false,
	ConsoleAppender: true,
}

func getDefaultCfg() *LogCfg {
	return _defaultCfg
}
