package logger

import (
	"os"

	"relgraph_backend/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 在 InitLogger 之前是 no-op，测试与工具代码可以直接使用
var Log = zap.NewNop()

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:        "time",
	LevelKey:       "level",
	NameKey:        "logger",
	CallerKey:      "caller",
	MessageKey:     "msg",
	StacktraceKey:  "stacktrace",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.CapitalLevelEncoder,
	EncodeTime:     zapcore.ISO8601TimeEncoder,
	EncodeDuration: zapcore.SecondsDurationEncoder,
	EncodeCaller:   zapcore.ShortCallerEncoder,
}

// levelFor log.level 优先，未配置时 debug 模式输出 Debug，其余 Info
func levelFor(cfg *config.Config) (zapcore.Level, error) {
	if cfg.Log.Level != "" {
		return zapcore.ParseLevel(cfg.Log.Level)
	}
	if cfg.Server.Mode == "debug" {
		return zap.DebugLevel, nil
	}
	return zap.InfoLevel, nil
}

func fileWriter(lc config.LogConfig) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   lc.File,
		MaxSize:    lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAgeDays,
		Compress:   lc.Compress,
	})
}

// New 按配置构建 JSON 文件 + 控制台双输出的 logger；log.file 为空时只输出到控制台
func New(cfg *config.Config, console zapcore.WriteSyncer) (*zap.Logger, error) {
	level, err := levelFor(cfg)
	if err != nil {
		return nil, err
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), console, level),
	}
	if cfg.Log.File != "" {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter(cfg.Log), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)), nil
}

func InitLogger(cfg *config.Config) {
	l, err := New(cfg, zapcore.AddSync(os.Stdout))
	if err != nil {
		// 日志级别写错不应阻止启动
		fallback := *cfg
		fallback.Log.Level = ""
		l, _ = New(&fallback, zapcore.AddSync(os.Stdout))
		l.Warn("Invalid log level, falling back to default", zap.String("level", cfg.Log.Level), zap.Error(err))
	}
	Log = l
}
