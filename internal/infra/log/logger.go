package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger создаёт настроенный zerolog с полем сервиса. В dev — человекочитаемый
// консольный вывод и debug-уровень, в остальных окружениях — JSON и info.
func NewLogger(appEnv string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	logger := zerolog.New(os.Stdout)
	if appEnv == "dev" {
		level = zerolog.DebugLevel
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	}
	return logger.With().Timestamp().Str("service", "lyric-notes").Logger().Level(level)
}
