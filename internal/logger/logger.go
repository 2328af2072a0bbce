package logger

import (
	"io"
	"os"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/constants"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New debug/development 用 console 格式, 其他環境輸出 JSON
func New(env, level string) zerolog.Logger {
	return newLogger(os.Stdout, env, level)
}

func newLogger(out io.Writer, env, level string) zerolog.Logger {
	lv, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lv = zerolog.InfoLevel
	}

	w := out
	switch constants.ENV(env) {
	case constants.Debug, constants.Dev:
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(lv).With().Timestamp().Logger()
}

// Setup 建立 logger 並取代全域的 log.Logger
func Setup(env, level string) *zerolog.Logger {
	l := New(env, level)
	log.Logger = l
	return &l
}
