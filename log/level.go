package log

// Level log severity level.
type Level uint32

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the lower-case name of the level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	}
	return "unknown"
}

// LevelChangeEntry maps a file path and line number to an overriding level.
// Entries with Line == 0 apply to the whole file.
type LevelChangeEntry struct {
	File  string `mapstructure:"file"`
	Line  int    `mapstructure:"line"`
	Level Level  `mapstructure:"level"`
}

// levelChange resolves per-file/per-line log level overrides. It allows
// raising verbosity for a single hot code path in production without
// lowering the global level.
type levelChange struct {
	byFile map[string]Level
	byLine map[string]map[int]Level
}

func newLevelChange(entries []LevelChangeEntry) *levelChange {
	lc := &levelChange{
		byFile: make(map[string]Level),
		byLine: make(map[string]map[int]Level),
	}
	for _, e := range entries {
		if e.Line == 0 {
			lc.byFile[e.File] = e.Level
			continue
		}
		if lc.byLine[e.File] == nil {
			lc.byLine[e.File] = make(map[int]Level)
		}
		lc.byLine[e.File][e.Line] = e.Level
	}
	return lc
}

func (lc *levelChange) Empty() bool {
	return len(lc.byFile) == 0 && len(lc.byLine) == 0
}

// GetLevel returns the override for file:line, falling back to the whole-file
// override and finally to the passed default.
func (lc *levelChange) GetLevel(file string, line int, def Level) Level {
	if lines, ok := lc.byLine[file]; ok {
		if lv, ok := lines[line]; ok {
			return lv
		}
	}
	if lv, ok := lc.byFile[file]; ok {
		return lv
	}
	return def
}
