// Logger construction for the notedeck CLI: JSON file logging with
// rotation, plus an optional console sink on stderr.
package main

import (
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the process logger from configuration. With no file
// configured and the console disabled it degrades to a no-op logger.
func newLogger(v *viper.Viper) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(v.GetString(cfgKeyLogLevel))
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core

	if file := v.GetString(cfgKeyLogFile); file != "" {
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    v.GetInt(cfgKeyLogMaxSize),
			MaxBackups: v.GetInt(cfgKeyLogBackups),
			MaxAge:     v.GetInt(cfgKeyLogMaxAge),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(rotating),
			level,
		))
	}

	if v.GetBool(cfgKeyLogConsole) {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.AddSync(os.Stderr),
			level,
		))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}
