package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"s3repo/internal/errs"
)

// Logger 全局日志对象，由 Init 设置
var Logger = zap.NewNop().Sugar()

// LogConfig 日志配置
type LogConfig struct {
	Filename   string        // 日志文件路径，为空时输出到控制台
	MaxSize    int           // 单个日志文件最大大小，单位MB
	MaxBackups int           // 最大保留的旧日志文件数量
	MaxAge     int           // 旧日志文件保留的最大天数
	Compress   bool          // 是否压缩旧日志文件
	Level      zapcore.Level // 日志级别
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		MaxSize:    10,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
		Level:      zapcore.InfoLevel,
	}
}

// New builds a logger from config without touching the global one.
func New(config LogConfig) *zap.SugaredLogger {
	encoder := getEncoder()
	enabled := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= config.Level
	})

	var core zapcore.Core
	if config.Filename != "" {
		core = zapcore.NewCore(encoder, getLogWriter(config), enabled)
	} else {
		// 命令行工具的标准输出留给结果，日志统一写标准错误
		core = zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), enabled)
	}

	return zap.New(core, zap.AddCaller()).Sugar()
}

// Init 初始化全局日志，level 为 debug、info、warn 或 error
func Init(filename, level string) (*zap.SugaredLogger, error) {
	config := DefaultLogConfig()
	config.Filename = filename
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errs.Configuration("invalid log level: " + level)
	}
	config.Level = l
	Logger = New(config)
	return Logger, nil
}

// Close 关闭日志，确保所有日志都被写入
func Close() {
	_ = Logger.Sync()
}

func getEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func getLogWriter(config LogConfig) zapcore.WriteSyncer {
	lumberJackLogger := &lumberjack.Logger{
		Filename:   config.Filename,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	return zapcore.AddSync(lumberJackLogger)
}
