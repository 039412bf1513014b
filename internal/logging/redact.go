// internal/logging/redact.go
package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/agentflow/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const redacted = "[REDACTED]"

// Secret logs a config.Secret as a redaction marker with its length.
func Secret(key string, val config.Secret) zap.Field {
	return RedactedString(key, val.Value())
}

// RedactedString logs val as a redaction marker with its length.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// RedactingEncoder wraps an encoder and blanks sensitive keys and values.
type RedactingEncoder struct {
	zapcore.Encoder
	keys     map[string]struct{}
	patterns []*regexp.Regexp
}

// NewRedactingEncoder wraps base with the rules in cfg.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	enc := &RedactingEncoder{Encoder: base, keys: map[string]struct{}{}}
	if !cfg.Enabled {
		return enc, nil
	}
	for _, f := range cfg.Fields {
		enc.keys[strings.ToLower(f)] = struct{}{}
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		enc.patterns = append(enc.patterns, re)
	}
	return enc, nil
}

func (e *RedactingEncoder) sensitive(key string) bool {
	_, ok := e.keys[strings.ToLower(key)]
	return ok
}

func (e *RedactingEncoder) scrub(val string) string {
	for _, re := range e.patterns {
		val = re.ReplaceAllString(val, redacted)
	}
	return val
}

func (e *RedactingEncoder) AddString(key, val string) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddString(key, e.scrub(val))
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddBinary(key, val)
}

func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

// Clone copies the encoder; rules are shared.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), keys: e.keys, patterns: e.patterns}
}

// EncodeEntry scrubs the message before delegating.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	ent.Message = e.scrub(ent.Message)
	fields = append([]zapcore.Field(nil), fields...)
	for i := range fields {
		f := &fields[i]
		switch {
		case e.sensitive(f.Key):
			*f = zap.String(f.Key, redacted)
		case f.Type == zapcore.StringType:
			f.String = e.scrub(f.String)
		}
	}
	return e.Encoder.EncodeEntry(ent, fields)
}
