package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel string `env:"LOGGER_LEVEL" envDefault:"info"`
	DevMode  bool   `env:"LOGGER_DEV_MODE" envDefault:"false"`
	Encoder  string `env:"LOGGER_ENCODER" envDefault:"json"`
}

// Logger is the application logging contract. All services log through it.
type Logger interface {
	InitLogger()
	Logger() *zap.Logger
	Named(name string) Logger
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(template string, args ...interface{})
}

type appLogger struct {
	cfg   *Config
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

func NewAppLogger(cfg *Config) *appLogger {
	return &appLogger{cfg: cfg}
}

func (l *appLogger) InitLogger() {
	level, err := zapcore.ParseLevel(l.cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	core := zapcore.NewCore(
		l.buildEncoder(),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(level),
	)
	l.base = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	l.sugar = l.base.Sugar()
}

func (l *appLogger) buildEncoder() zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	if l.cfg.DevMode {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}
	encoderCfg.TimeKey = "time"
	encoderCfg.MessageKey = "message"
	encoderCfg.NameKey = "service"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if l.cfg.Encoder == "console" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	encoderCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return zapcore.NewJSONEncoder(encoderCfg)
}

func (l *appLogger) Logger() *zap.Logger {
	return l.base
}

// Named returns a child logger tagged with the component name.
func (l *appLogger) Named(name string) Logger {
	child := l.base.Named(name)
	return &appLogger{cfg: l.cfg, base: child, sugar: child.Sugar()}
}

func (l *appLogger) Debug(args ...interface{}) { l.sugar.Debug(args...) }
func (l *appLogger) Info(args ...interface{})  { l.sugar.Info(args...) }
func (l *appLogger) Warn(args ...interface{})  { l.sugar.Warn(args...) }
func (l *appLogger) Error(args ...interface{}) { l.sugar.Error(args...) }
func (l *appLogger) Fatal(args ...interface{}) { l.sugar.Fatal(args...) }

func (l *appLogger) Debugf(template string, args ...interface{}) {
	l.sugar.Debugf(template, args...)
}

func (l *appLogger) Infof(template string, args ...interface{}) {
	l.sugar.Infof(template, args...)
}

func (l *appLogger) Warnf(template string, args ...interface{}) {
	l.sugar.Warnf(template, args...)
}

func (l *appLogger) Errorf(template string, args ...interface{}) {
	l.sugar.Errorf(template, args...)
}

func (l *appLogger) Fatalf(template string, args ...interface{}) {
	l.sugar.Fatalf(template, args...)
}
