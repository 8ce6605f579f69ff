package log

import (
	"bytes"
	"strconv"
	"time"
)

// LogEvent accumulates structured fields for a single log entry. Events are
// pooled by the owning logger; a nil receiver is valid everywhere so that a
// filtered-out level costs a single nil check at the call site.
//
// A typical call chain:
//
//	log.Info().Str("group", "world").Uint16("server", 12).Msg("server joined")
type LogEvent struct {
	logger Logger
	level  Level
	buf    bytes.Buffer
}

func newEvent(logger Logger) *LogEvent {
	return &LogEvent{logger: logger}
}

// Reset prepares a pooled event for reuse.
func (e *LogEvent) Reset() {
	e.buf.Reset()
	e.level = DebugLevel
}

func (e *LogEvent) appendKey(key string) {
	if e.buf.Len() == 0 {
		e.buf.WriteByte('{')
	} else {
		e.buf.WriteByte(',')
	}
	e.buf.WriteString(strconv.Quote(key))
	e.buf.WriteByte(':')
}

// Str adds a string field.
func (e *LogEvent) Str(key, val string) *LogEvent {
	if e == nil {
		return e
	}
	e.appendKey(key)
	e.buf.WriteString(strconv.Quote(val))
	return e
}

// Strs adds a string slice field.
func (e *LogEvent) Strs(key string, vals []string) *LogEvent {
	if e == nil {
		return e
	}
	e.appendKey(key)
	e.buf.WriteByte('[')
	for i, v := range vals {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.buf.WriteString(strconv.Quote(v))
	}
	e.buf.WriteByte(']')
	return e
}

// Int adds an int field.
func (e *LogEvent) Int(key string, val int) *LogEvent {
	if e == nil {
		return e
	}
	e.appendKey(key)
	e.buf.WriteString(strconv.Itoa(val))
	return e
}

// Uint16 adds a uint16 field. Client and remote server IDs are 16 bit, so
// this is the most common numeric field in the codebase.
func (e *LogEvent) Uint16(key string, val uint16) *LogEvent {
	if e == nil {
		return e
	}
	e.appendKey(key)
	e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
	return e
}

// Uint32 adds a uint32 field.
func (e *LogEvent) Uint32(key string, val uint32) *LogEvent {
	if e == nil {
		return e
	}
	e.appendKey(key)
	e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
	return e
}

// Uint64 adds a uint64 field.
func (e *LogEvent) Uint64(key string, val uint64) *LogEvent {
	if e == nil {
		return e
	}
	e.appendKey(key)
	e.buf.WriteString(strconv.FormatUint(val, 10))
	return e
}

// Bool adds a bool field.
func (e *LogEvent) Bool(key string, val bool) *LogEvent {
	if e == nil {
		return e
	}
	e.appendKey(key)
	e.buf.WriteString(strconv.FormatBool(val))
	return e
}

// Err adds an "error" field; a nil error adds nothing.
func (e *LogEvent) Err(err error) *LogEvent {
	if e == nil || err == nil {
		return e
	}
	e.appendKey("error")
	e.buf.WriteString(strconv.Quote(err.Error()))
	return e
}

// Time adds a timestamp field in RFC3339 with millisecond precision.
func (e *LogEvent) Time(key string, t *time.Time) *LogEvent {
	if e == nil {
		return e
	}
	e.appendKey(key)
	e.buf.WriteString(strconv.Quote(t.Format("2006-01-02T15:04:05.000Z07:00")))
	return e
}

// Dur adds a duration field rendered as a string.
func (e *LogEvent) Dur(key string, d time.Duration) *LogEvent {
	if e == nil {
		return e
	}
	e.appendKey(key)
	e.buf.WriteString(strconv.Quote(d.String()))
	return e
}

// Msg finalizes the event with a message and hands it to the logger for
// output. The event must not be used after Msg returns.
func (e *LogEvent) Msg(msg string) {
	if e == nil {
		return
	}
	e.appendKey("msg")
	e.buf.WriteString(strconv.Quote(msg))
	e.buf.WriteByte('}')
	e.buf.WriteByte('\n')
	e.logger.OnEventEnd(e)
}
