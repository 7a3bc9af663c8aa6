package logger

import (
	"github.com/sirupsen/logrus"

	"github.com/honeycombio/queuerouter/config"
)

// StdoutLogger is a Logger implementation that sends all logs to stdout using
// the Logrus package to get nice formatting
type StdoutLogger struct {
	Config config.Config `inject:""`

	logger *logrus.Logger
	level  *logrus.Level
}

var _ = Logger((*StdoutLogger)(nil))

type LogrusEntry struct {
	entry *logrus.Entry
	level logrus.Level
}

func (s *StdoutLogger) Start() error {
	s.logger = logrus.New()
	if s.level != nil {
		s.logger.SetLevel(*s.level)
	}

	if s.Config == nil {
		return nil
	}
	if s.Config.GetStdoutLoggerConfig().Structured {
		s.logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl := s.Config.GetLoggerLevel(); lvl != config.UnknownLevel {
		return s.SetLevel(lvl.String())
	}
	return nil
}

func (s *StdoutLogger) newLogrusEntry(level logrus.Level) *LogrusEntry {
	return &LogrusEntry{
		entry: logrus.NewEntry(s.logger),
		level: level,
	}
}

func (s *StdoutLogger) Debug() Entry {
	if !s.logger.IsLevelEnabled(logrus.DebugLevel) {
		return nullEntry
	}
	return s.newLogrusEntry(logrus.DebugLevel)
}

func (s *StdoutLogger) Info() Entry {
	if !s.logger.IsLevelEnabled(logrus.InfoLevel) {
		return nullEntry
	}
	return s.newLogrusEntry(logrus.InfoLevel)
}

func (s *StdoutLogger) Warn() Entry {
	if !s.logger.IsLevelEnabled(logrus.WarnLevel) {
		return nullEntry
	}
	return s.newLogrusEntry(logrus.WarnLevel)
}

func (s *StdoutLogger) Error() Entry {
	if !s.logger.IsLevelEnabled(logrus.ErrorLevel) {
		return nullEntry
	}
	return s.newLogrusEntry(logrus.ErrorLevel)
}

func (s *StdoutLogger) SetLevel(level string) error {
	logrusLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	// record the choice and set it if we're already initialized
	s.level = &logrusLevel
	if s.logger != nil {
		s.logger.SetLevel(logrusLevel)
	}
	return nil
}

func (l *LogrusEntry) WithField(key string, value any) Entry {
	return &LogrusEntry{
		entry: l.entry.WithField(key, value),
		level: l.level,
	}
}

func (l *LogrusEntry) WithString(key string, value string) Entry {
	return l.WithField(key, value)
}

func (l *LogrusEntry) WithFields(fields map[string]any) Entry {
	return &LogrusEntry{
		entry: l.entry.WithFields(fields),
		level: l.level,
	}
}

func (l *LogrusEntry) Logf(f string, args ...any) {
	l.entry.Logf(l.level, f, args...)
}
