package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the process-wide application logger. It discards everything until
// InitLogger runs, which keeps tests quiet.
var Log = zap.NewNop().Sugar()

// InitLogger builds the application logger from cfg. With a log file path
// configured, output goes to a size-rotated file; otherwise to stdout.
func InitLogger(cfg *Config) error {
	lvl, err := zapcore.ParseLevel(cfg.Logging.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")

	var ws zapcore.WriteSyncer
	if cfg.Logging.LogFilePath != "" {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Logging.LogFilePath,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAgeDays,
		})
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		ws = zapcore.Lock(os.Stdout)
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, zap.NewAtomicLevelAt(lvl))
	opts := []zap.Option{}
	if cfg.Logging.IncludeCaller {
		opts = append(opts, zap.AddCaller())
	}
	Log = zap.New(core, opts...).Sugar()
	return nil
}

// SyncLogger flushes any buffered log entries.
func SyncLogger() {
	_ = Log.Sync()
}
