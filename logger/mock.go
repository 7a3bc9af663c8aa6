package logger

import (
	"fmt"
	"maps"
	"sync"

	"github.com/honeycombio/queuerouter/config"
)

// MockLogger records every logged entry so tests can inspect them.
type MockLogger struct {
	Events []*MockLoggerEvent
	mutex  sync.Mutex
}

var _ = Logger((*MockLogger)(nil))

type MockLoggerEvent struct {
	l       *MockLogger
	Level   config.Level
	Message string
	Fields  map[string]any
}

func (l *MockLogger) newEvent(level config.Level) Entry {
	return &MockLoggerEvent{
		l:      l,
		Level:  level,
		Fields: make(map[string]any),
	}
}

func (l *MockLogger) Debug() Entry { return l.newEvent(config.DebugLevel) }
func (l *MockLogger) Info() Entry  { return l.newEvent(config.InfoLevel) }
func (l *MockLogger) Warn() Entry  { return l.newEvent(config.WarnLevel) }
func (l *MockLogger) Error() Entry { return l.newEvent(config.ErrorLevel) }

func (l *MockLogger) SetLevel(level string) error {
	return nil
}

// EventsAt returns a copy of the recorded events logged at level.
func (l *MockLogger) EventsAt(level config.Level) []*MockLoggerEvent {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	var out []*MockLoggerEvent
	for _, ev := range l.Events {
		if ev.Level == level {
			out = append(out, ev)
		}
	}
	return out
}

func (e *MockLoggerEvent) WithField(key string, value any) Entry {
	e.Fields[key] = value
	return e
}

func (e *MockLoggerEvent) WithString(key string, value string) Entry {
	return e.WithField(key, value)
}

func (e *MockLoggerEvent) WithFields(fields map[string]any) Entry {
	maps.Copy(e.Fields, fields)
	return e
}

func (e *MockLoggerEvent) Logf(f string, args ...any) {
	e.Message = fmt.Sprintf(f, args...)
	e.l.mutex.Lock()
	e.l.Events = append(e.l.Events, e)
	e.l.mutex.Unlock()
}
