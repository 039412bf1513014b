package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug (-1) for prompt and wire dumps.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a level name, accepting "trace" and the upper-case
// names "INFO" and "WARNING".
func LevelFromString(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return TraceLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}
