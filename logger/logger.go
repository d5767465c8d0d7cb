package logger

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/ridgeway-transit/opscore/config"
)

// New returns a configured zerolog.Logger. Development gets a readable
// console writer at debug level; production gets structured JSON at info.
func New(cfg *config.Config) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if cfg.IsDevelopment() {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var log zerolog.Logger
	if cfg.IsDevelopment() {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return log
}
