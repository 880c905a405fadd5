// Package obslog provides the daemon-wide structured logger.
package obslog

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the process-wide sugared logger. It starts as a sane stderr
// default so early startup code (flag parsing, before a log file is known)
// never logs through a nil logger.
var Logger = newHolder(buildDefault(defaultConfig()))

var nopLogger = zap.NewNop().Sugar()

func defaultConfig() *zap.Config {
	c := zap.NewProductionConfig()
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return &c
}

// ParseLevel parses the level name derived from `-d`, defaulting to info.
func ParseLevel(level string) (zap.AtomicLevel, error) {
	lvl := zap.NewAtomicLevel()
	if level != "" && level != "info" {
		var err error
		lvl, err = zap.ParseAtomicLevel(level)
		if err != nil {
			return zap.AtomicLevel{}, err
		}
	}
	return lvl, nil
}

// Configure rebuilds the global Logger for the given level and optional
// rotating log file. Called once at daemon startup, right after the CLI
// flags are parsed and before the config file is loaded, per spec §6 (`-d`,
// and an implicit log destination).
func Configure(level zap.AtomicLevel, logFile string) {
	if logFile != "" {
		Logger.set(buildWithLumberjack(logFile, 64, level.Level()).Sugar())
		return
	}
	cfg := defaultConfig()
	cfg.Level = level
	Logger.set(buildDefault(cfg))
}

func buildDefault(cfg *zap.Config) *zap.SugaredLogger {
	if cfg == nil {
		cfg = defaultConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l.Sugar()
}

func buildWithLumberjack(logFile string, maxSizeMB int, level zapcore.Level) *zap.Logger {
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    maxSizeMB,
		MaxBackups: 5,
		MaxAge:     3,
		Compress:   true,
	})

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, level)
	return zap.New(core)
}

// holder lets Configure swap the logger underneath already-taken references
// without a data race, matching the teacher's atomic-pointer pattern.
type holder struct {
	p atomic.Pointer[zap.SugaredLogger]
}

func newHolder(l *zap.SugaredLogger) *holder {
	h := &holder{}
	h.set(l)
	return h
}

func (h *holder) set(l *zap.SugaredLogger) {
	if l == nil {
		l = nopLogger
	}
	h.p.Store(l)
}

func (h *holder) get() *zap.SugaredLogger {
	if h == nil {
		return nopLogger
	}
	l := h.p.Load()
	if l == nil {
		return nopLogger
	}
	return l
}

func (h *holder) Debug(args ...interface{})              { h.get().Debug(args...) }
func (h *holder) Debugf(tmpl string, args ...interface{}) { h.get().Debugf(tmpl, args...) }
func (h *holder) Debugw(msg string, kv ...interface{})    { h.get().Debugw(msg, kv...) }
func (h *holder) Info(args ...interface{})                { h.get().Info(args...) }
func (h *holder) Infof(tmpl string, args ...interface{})  { h.get().Infof(tmpl, args...) }
func (h *holder) Infow(msg string, kv ...interface{})     { h.get().Infow(msg, kv...) }
func (h *holder) Warn(args ...interface{})                { h.get().Warn(args...) }
func (h *holder) Warnf(tmpl string, args ...interface{})  { h.get().Warnf(tmpl, args...) }
func (h *holder) Warnw(msg string, kv ...interface{})     { h.get().Warnw(msg, kv...) }
func (h *holder) Error(args ...interface{})               { h.get().Error(args...) }
func (h *holder) Errorf(tmpl string, args ...interface{}) { h.get().Errorf(tmpl, args...) }
func (h *holder) Errorw(msg string, kv ...interface{})    { h.get().Errorw(msg, kv...) }
func (h *holder) Fatal(args ...interface{})               { h.get().Fatal(args...) }
func (h *holder) Fatalf(tmpl string, args ...interface{}) { h.get().Fatalf(tmpl, args...) }
