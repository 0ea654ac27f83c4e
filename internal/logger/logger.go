package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	SetConsoleWriter()
}

// Log returns the process-wide logger.
func Log() *zerolog.Logger {
	return &log
}

// SetConsoleWriter switches output to a human friendly console format on stderr.
func SetConsoleWriter() {
	log = zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
		w.FormatLevel = consoleFormatLevel(false)
		w.TimeFormat = "15:04:05.000"
	})).With().Timestamp().Logger()
}

// SetJSONWriter switches output to one JSON document per line on stderr.
func SetJSONWriter() {
	log = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// SetWriter is mostly useful in tests.
func SetWriter(w io.Writer) {
	log = zerolog.New(w).With().Timestamp().Logger()
}

// Configure applies a level and format ("console" or "json").
func Configure(level, format string) error {
	if err := SetLevel(level); err != nil {
		return err
	}
	switch strings.ToLower(format) {
	case "", "console":
		SetConsoleWriter()
	case "json":
		SetJSONWriter()
	default:
		return fmt.Errorf("invalid log format: %s", format)
	}
	return nil
}

func SetLevel(level string) error {
	switch strings.ToLower(level) {
	case "", "info", "notice":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "trace", "verbose":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "quiet", "silent":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}
	return nil
}

func colorize(s interface{}, c int, disabled bool) string {
	if disabled {
		return fmt.Sprintf("%s", s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorMagenta = 35
	colorBold    = 1
)

func consoleFormatLevel(noColor bool) zerolog.Formatter {
	return func(i interface{}) string {
		ll, ok := i.(string)
		if !ok {
			return colorize("???", colorBold, noColor)
		}
		switch ll {
		case "trace":
			return colorize("TRC", colorMagenta, noColor)
		case "debug":
			return colorize("DBG", colorYellow, noColor)
		case "info":
			return colorize("INF", colorGreen, noColor)
		case "warn":
			return colorize("WRN", colorRed, noColor)
		case "error":
			return colorize(colorize("ERR", colorRed, noColor), colorBold, noColor)
		case "fatal":
			return colorize(colorize("FTL", colorRed, noColor), colorBold, noColor)
		case "panic":
			return colorize(colorize("PNC", colorRed, noColor), colorBold, noColor)
		}
		if len(ll) >= 3 {
			return strings.ToUpper(ll[:3])
		}
		return colorize("???", colorBold, noColor)
	}
}
