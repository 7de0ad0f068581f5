package observability

import (
	"log/slog"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// NewLogger builds the process JSON or text logger on stdout and installs it
// as the slog default. level is one of debug, info, warn or error.
func NewLogger(level, format string) *slog.Logger {
	return sharedobs.NewLogger(level, format)
}
