// Package logging builds the process logger and scrubs secrets from
// everything that passes through it.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

const mask = "[REDACTED]"

// DefaultSensitiveKeys are matched case-insensitively as substrings of
// attribute and map keys.
var DefaultSensitiveKeys = []string{
	"token",
	"secret",
	"password",
	"api_key",
	"apikey",
	"x-api-key",
	"authorization",
	"client_secret",
	"dsn",
}

var bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`)

// Redactor masks values under sensitive keys and bearer tokens inside strings.
type Redactor struct {
	keys []string
}

// NewRedactor returns a Redactor for DefaultSensitiveKeys plus extra.
func NewRedactor(extra ...string) *Redactor {
	keys := make([]string, 0, len(DefaultSensitiveKeys)+len(extra))
	for _, k := range append(append([]string{}, DefaultSensitiveKeys...), extra...) {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keys = append(keys, k)
		}
	}
	return &Redactor{keys: keys}
}

// Sensitive reports whether key names a secret.
func (r *Redactor) Sensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range r.keys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// MaskString replaces bearer-token-shaped substrings.
func (r *Redactor) MaskString(s string) string {
	return bearerPattern.ReplaceAllString(s, "Bearer "+mask)
}

// Redact returns a copy of v with sensitive map entries masked, walking
// nested maps and slices. Inputs are never modified.
func (r *Redactor) Redact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if r.Sensitive(k) {
				out[k] = mask
				continue
			}
			out[k] = r.Redact(val)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, val := range t {
			if r.Sensitive(k) {
				out[k] = mask
				continue
			}
			out[k] = r.MaskString(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = r.Redact(val)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, val := range t {
			out[i] = r.MaskString(val)
		}
		return out
	case string:
		return r.MaskString(t)
	case error:
		return r.MaskString(t.Error())
	default:
		return v
	}
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return a
	}
	if r.Sensitive(a.Key) && a.Key != slog.MessageKey {
		return slog.String(a.Key, mask)
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.MaskString(v.String()))
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return slog.String(a.Key, r.MaskString(x.Error()))
		case fmt.Stringer:
			return slog.String(a.Key, r.MaskString(x.String()))
		default:
			return slog.Any(a.Key, r.Redact(x))
		}
	}
	return a
}

// New returns a logger writing format ("json" or "text") to w at level,
// with every attribute passed through the redactor.
func New(w io.Writer, format string, level slog.Level, r *Redactor) *slog.Logger {
	if r == nil {
		r = NewRedactor()
	}
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: r.ReplaceAttr}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
