package logging

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает уровень из строки конфигурации (регистр не важен)
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "", "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// Options параметры корневого логгера
type Options struct {
	Level       LogLevel
	JSON        bool     // JSON вместо консольного формата
	OutputPaths []string // по умолчанию stdout
}

// Logger логгер компонента поверх zap.
// Уровень TRACE пишется как debug-запись с полем trace=true.
type Logger struct {
	component string
	base      *zap.Logger
	sugar     *zap.SugaredLogger
	trace     *zap.SugaredLogger
	level     atomic.Int32
}

var (
	rootMu        sync.RWMutex
	rootCore      zapcore.Core = zapcore.NewNopCore()
	rootLevel                  = INFO
	defaultLogger              = NewLoggerWithCore("server", zapcore.NewNopCore(), INFO)
)

// Init настраивает корневой zap-логгер и логгер по умолчанию.
// Логгеры компонентов, выданные до вызова, продолжают писать в прежний core.
func Init(opts Options) error {
	cfg := zap.NewProductionConfig()
	if !opts.JSON {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.Sampling = nil
	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	}

	root, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("ошибка создания логгера: %w", err)
	}

	rootMu.Lock()
	rootCore = root.Core()
	rootLevel = opts.Level
	defaultLogger = NewLoggerWithCore("server", rootCore, opts.Level)
	rootMu.Unlock()

	GetLoggerManager().reset()
	return nil
}

// NewLogger создаёт логгер компонента поверх корневого core
func NewLogger(component string) *Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return NewLoggerWithCore(component, rootCore, rootLevel)
}

// NewLoggerWithCore создаёт логгер компонента поверх произвольного core
func NewLoggerWithCore(component string, core zapcore.Core, level LogLevel) *Logger {
	base := zap.New(core).With(zap.String("component", component))
	l := &Logger{
		component: component,
		base:      base,
		sugar:     base.Sugar(),
		trace:     base.With(zap.Bool("trace", true)).Sugar(),
	}
	l.level.Store(int32(level))
	return l
}

// Default возвращает логгер по умолчанию
func Default() *Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return defaultLogger
}

// Component возвращает имя компонента
func (l *Logger) Component() string {
	return l.component
}

// SetLevel меняет минимальный уровень логгера
func (l *Logger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

// Level возвращает минимальный уровень логгера
func (l *Logger) Level() LogLevel {
	return LogLevel(l.level.Load())
}

// Enabled сообщает, будет ли записано сообщение уровня level
func (l *Logger) Enabled(level LogLevel) bool {
	return level >= l.Level()
}

// With возвращает дочерний логгер с дополнительными полями
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	child := &Logger{
		component: l.component,
		base:      l.sugar.With(keysAndValues...).Desugar(),
	}
	child.sugar = child.base.Sugar()
	child.trace = child.base.With(zap.Bool("trace", true)).Sugar()
	child.level.Store(l.level.Load())
	return child
}

// Zap возвращает нижележащий *zap.Logger
func (l *Logger) Zap() *zap.Logger {
	return l.base
}

// Sync сбрасывает буферы
func (l *Logger) Sync() error {
	return l.base.Sync()
}

// Trace логирует сообщение уровня TRACE
func (l *Logger) Trace(format string, args ...interface{}) {
	if l.Enabled(TRACE) {
		l.trace.Debugf(format, args...)
	}
}

// Debug логирует сообщение уровня DEBUG
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.Enabled(DEBUG) {
		l.sugar.Debugf(format, args...)
	}
}

// Info логирует сообщение уровня INFO
func (l *Logger) Info(format string, args ...interface{}) {
	if l.Enabled(INFO) {
		l.sugar.Infof(format, args...)
	}
}

// Warn логирует сообщение уровня WARN
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.Enabled(WARN) {
		l.sugar.Warnf(format, args...)
	}
}

// Error логирует сообщение уровня ERROR
func (l *Logger) Error(format string, args ...interface{}) {
	if l.Enabled(ERROR) {
		l.sugar.Errorf(format, args...)
	}
}

// Trace логирует сообщение уровня TRACE в логгер по умолчанию
func Trace(format string, args ...interface{}) { Default().Trace(format, args...) }

// Debug логирует сообщение уровня DEBUG в логгер по умолчанию
func Debug(format string, args ...interface{}) { Default().Debug(format, args...) }

// Info логирует сообщение уровня INFO в логгер по умолчанию
func Info(format string, args ...interface{}) { Default().Info(format, args...) }

// Warn логирует сообщение уровня WARN в логгер по умолчанию
func Warn(format string, args ...interface{}) { Default().Warn(format, args...) }

// Error логирует сообщение уровня ERROR в логгер по умолчанию
func Error(format string, args ...interface{}) { Default().Error(format, args...) }

// Sync сбрасывает буферы логгера по умолчанию
func Sync() error { return Default().Sync() }
