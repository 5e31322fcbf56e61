package rpng

import (
	"io"

	"github.com/rs/zerolog"
)

// Diagnostics are silent unless the caller installs a logger.
var logger = zerolog.New(io.Discard)

// SetLogger routes library diagnostics to l.
func SetLogger(l zerolog.Logger) {
	logger = l
}
