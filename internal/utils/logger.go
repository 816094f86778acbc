package utils

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// MainLogFile 主日志文件名
	MainLogFile = "price_corrector.log"
	// ErrorLogFile 错误日志文件名, 只记录error及以上
	ErrorLogFile = "price_corrector_error.log"
)

// Logger 全局日志器, InitLogger之前输出到stderr
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

// LogConfig 日志配置
type LogConfig struct {
	Level      string // trace|debug|info|warn|error
	LogDir     string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
	NoColor    bool
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}
}

// rotatingFile 按配置轮转的日志文件
func (c LogConfig) rotatingFile(name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(c.LogDir, name),
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

// InitLogger 初始化全局日志: 控制台 + 主日志 + 错误日志
func InitLogger(config LogConfig) error {
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return err
	}

	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(config.Level); err == nil && config.Level != "" {
		level = parsed
	}
	zerolog.SetGlobalLevel(level)

	errorsOnly := &zerolog.FilteredLevelWriter{
		Writer: zerolog.LevelWriterAdapter{Writer: config.rotatingFile(ErrorLogFile)},
		Level:  zerolog.ErrorLevel,
	}
	writer := zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339, NoColor: config.NoColor},
		config.rotatingFile(MainLogFile),
		errorsOnly,
	)

	Logger = zerolog.New(writer).With().Timestamp().Caller().Logger()
	log.Logger = Logger

	Logger.Info().
		Str("level", level.String()).
		Str("log_dir", config.LogDir).
		Msg("日志系统初始化完成")
	return nil
}

// 快捷方法, 写入全局Logger

func Info(msg string) { Logger.Info().Msg(msg) }
func Infof(format string, args ...any) { Logger.Info().Msgf(format, args...) }
func Warn(msg string) { Logger.Warn().Msg(msg) }
func Warnf(format string, args ...any) { Logger.Warn().Msgf(format, args...) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Debugf(format string, args ...any) { Logger.Debug().Msgf(format, args...) }
func Errorf(format string, args ...any) { Logger.Error().Msgf(format, args...) }
func Error(err error, msg string) { Logger.Error().Err(err).Msg(msg) }
