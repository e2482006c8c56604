// Package log provides the process-wide structured logger used by every
// stage of the proxy.
package log

import (
	"errors"
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls where and how log output is written.
type Config struct {
	STDOUT     bool   // write to stdout
	File       string // rotating log file path, empty disables file output
	Level      int8   // debug -1 | info 0 (default) | warn 1 | error 2
	MaxAge     int    // days to retain rotated files
	MaxSize    int    // megabytes per file before rotation
	MaxBackups int    // rotated files to keep
	Compress   bool   // gzip rotated files
	JSONFormat bool   // JSON vs console encoding
}

var (
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger
)

func init() {
	// Always have a usable logger even if Init is never called (e.g. in tests).
	Logger = zap.NewNop()
	Sugar = Logger.Sugar()
}

// Init configures the package-level Logger/Sugar from cfg. At least one of
// cfg.File or cfg.STDOUT must be set.
func Init(cfg Config) error {
	var syncers []zapcore.WriteSyncer

	if len(cfg.File) > 0 {
		hook := lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			LocalTime:  false,
			Compress:   cfg.Compress,
		}
		syncers = append(syncers, zapcore.AddSync(&hook))
	}

	if cfg.STDOUT {
		syncers = append(syncers, zapcore.AddSync(os.Stdout))
	}

	if len(syncers) == 0 {
		return errors.New("log: at least one write syncer is required")
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      "C",
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	var enc zapcore.Encoder
	if cfg.JSONFormat {
		enc = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encoderCfg)
	}

	switch zapcore.Level(cfg.Level) {
	case zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel:
	default:
		cfg.Level = int8(zapcore.InfoLevel)
	}

	Logger = zap.New(zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(syncers...), zapcore.Level(cfg.Level)), zap.AddCaller())
	Sugar = Logger.Sugar()

	return nil
}

// Sync flushes any buffered log entries. Call it once at shutdown.
func Sync() error {
	return Logger.Sync()
}
