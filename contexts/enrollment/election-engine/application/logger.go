package application

import "log/slog"

// ResolveLogger guarantees a non-nil logger so election commands, queries and
// ballot workers can emit their structured events without nil checks at every
// call site.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
