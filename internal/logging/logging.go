// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Formats accepted by New.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New returns a zerolog logger writing to w (stderr when nil) at level.
// The console format is human readable; json emits one object per line.
func New(level, format string, w io.Writer) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	lvl := zerolog.InfoLevel
	if level != "" {
		var err error
		lvl, err = zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("log level %q: %w", level, err)
		}
	}

	switch strings.ToLower(format) {
	case "", FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: noColor(w)}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("log format %q: want console or json", format)
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

func noColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return true
	}
	st, err := f.Stat()
	if err != nil {
		return true
	}
	return st.Mode()&os.ModeCharDevice == 0
}
