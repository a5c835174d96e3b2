package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Options selects how the process logs.
//   - Level: trace, debug, info, warn, error, fatal, panic (unknown means info)
//   - Format: "json", "pretty", or "auto" (pretty only on an interactive terminal)
//   - App and TabID are stamped on every entry when set
type Options struct {
	Level  string
	Format string
	App    string
	TabID  string
}

// Setup builds the process logger on stdout.
func Setup(opts Options) zerolog.Logger {
	return New(os.Stdout, opts)
}

// New builds a logger writing to out.
func New(out io.Writer, opts Options) zerolog.Logger {
	writer := out
	if usePretty(out, opts.Format) {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	ctx := zerolog.New(writer).With().Timestamp().Caller()
	if opts.App != "" {
		ctx = ctx.Str("app", opts.App)
	}
	if opts.TabID != "" {
		ctx = ctx.Str("tab_id", opts.TabID)
	}
	return ctx.Logger()
}

func usePretty(out io.Writer, format string) bool {
	switch format {
	case "pretty":
		return true
	case "auto":
		f, ok := out.(*os.File)
		return ok && term.IsTerminal(int(f.Fd()))
	default:
		return false
	}
}
