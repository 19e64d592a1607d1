package loggingx

import (
	"github.com/dogmatiq/dodeca/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Zap returns a logging.Logger that writes to a zap logger.
//
// Regular messages are logged at the info level, debug messages at the debug
// level.
func Zap(l *zap.Logger) logging.Logger {
	return &zapLogger{l.Sugar()}
}

type zapLogger struct {
	target *zap.SugaredLogger
}

func (l *zapLogger) Log(f string, v ...interface{}) {
	l.target.Infof(f, v...)
}

func (l *zapLogger) LogString(s string) {
	l.target.Info(s)
}

func (l *zapLogger) Debug(f string, v ...interface{}) {
	l.target.Debugf(f, v...)
}

func (l *zapLogger) DebugString(s string) {
	l.target.Debug(s)
}

func (l *zapLogger) IsDebug() bool {
	return l.target.Desugar().Core().Enabled(zapcore.DebugLevel)
}
