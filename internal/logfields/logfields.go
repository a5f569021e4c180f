package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyGenerationID = "generation_id"
	KeyProjectID    = "project_id"
	KeyPageID       = "page_id"
	KeyPageName     = "page_name"
	KeyStrategy     = "strategy"
	KeyStage        = "stage"
	KeyUnit         = "unit"
	KeyAttempt      = "attempt"
	KeyProvider     = "provider"
	KeyModel        = "model"
	KeyDurationMS   = "duration_ms"
	KeyMethod       = "method"
	KeyPath         = "path"
	KeyStatus       = "status"
	KeyRequestID    = "request_id"
	KeyRule         = "rule"
	KeyError        = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func GenerationID(id string) slog.Attr { return slog.String(KeyGenerationID, id) }
func ProjectID(id string) slog.Attr    { return slog.String(KeyProjectID, id) }
func PageID(id string) slog.Attr       { return slog.String(KeyPageID, id) }
func PageName(n string) slog.Attr      { return slog.String(KeyPageName, n) }
func Strategy(s string) slog.Attr      { return slog.String(KeyStrategy, s) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func Unit(name string) slog.Attr       { return slog.String(KeyUnit, name) }
func Attempt(n int) slog.Attr          { return slog.Int(KeyAttempt, n) }
func Provider(p string) slog.Attr      { return slog.String(KeyProvider, p) }
func Model(m string) slog.Attr         { return slog.String(KeyModel, m) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func RequestID(id string) slog.Attr    { return slog.String(KeyRequestID, id) }
func Rule(r string) slog.Attr          { return slog.String(KeyRule, r) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
