package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOption 日志初始化参数
type LogOption struct {
	Format   string // console / json
	LogDir   string // 为空时只输出到 stdout
	Level    string // debug / info / warn / error
	Compress bool   // 是否压缩轮转后的日志
}

const (
	logFileName   = "app.log"
	maxSizeMB     = 200
	maxBackups    = 20
	maxAgeDays    = 7
	defaultFormat = "console"
)

var (
	mu     sync.RWMutex
	sugar  = zap.NewNop().Sugar()
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	closer func() error
)

// Init 按配置初始化全局 logger，可重复调用（后一次覆盖前一次）
func Init(opt LogOption) {
	lvl := parseLevel(opt.Level)
	level.SetLevel(lvl)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(opt.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)}

	var rotator *lumberjack.Logger
	if opt.LogDir != "" {
		rotator = &lumberjack.Logger{
			Filename:   filepath.Join(opt.LogDir, logFileName),
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   opt.Compress,
			LocalTime:  true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))

	mu.Lock()
	old := closer
	sugar = l.Sugar()
	closer = func() error {
		_ = l.Sync()
		if rotator != nil {
			return rotator.Close()
		}
		return nil
	}
	mu.Unlock()

	if old != nil {
		_ = old()
	}
}

func parseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Sync 刷新缓冲并关闭日志文件，进程退出前调用
func Sync() {
	mu.RLock()
	c := closer
	mu.RUnlock()
	if c != nil {
		_ = c()
	}
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Debugf(template string, args ...interface{}) {
	current().Debugf(template, args...)
}

func Infof(template string, args ...interface{}) {
	current().Infof(template, args...)
}

func Warnf(template string, args ...interface{}) {
	current().Warnf(template, args...)
}

func Errorf(template string, args ...interface{}) {
	current().Errorf(template, args...)
}
