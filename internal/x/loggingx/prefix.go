package loggingx

import (
	"fmt"
	"strings"

	"github.com/dogmatiq/dodeca/logging"
)

// WithPrefix returns a logger that adds a prefix to log messages.
func WithPrefix(target logging.Logger, f string, v ...interface{}) logging.Logger {
	prefix := fmt.Sprintf(f, v...)

	if p, ok := target.(*prefixer); ok {
		// Flatten nested prefixes so that each log call is a single hop.
		target = p.target
		prefix = p.prefix + prefix
	}

	return &prefixer{
		target,
		prefix,
		strings.ReplaceAll(prefix, "%", "%%"),
	}
}

// ForProcess returns a logger that prefixes each message with the rank of the
// local process, in the form "[rank/size] ".
func ForProcess(target logging.Logger, rank, size int) logging.Logger {
	if target == nil {
		target = logging.DefaultLogger
	}

	return WithPrefix(target, "[%d/%d] ", rank, size)
}

type prefixer struct {
	target logging.Logger
	prefix string
	format string
}

func (p *prefixer) Log(fmt string, v ...interface{}) {
	p.target.Log(p.format+fmt, v...)
}

func (p *prefixer) LogString(s string) {
	p.target.LogString(p.prefix + s)
}

func (p *prefixer) Debug(fmt string, v ...interface{}) {
	p.target.Debug(p.format+fmt, v...)
}

func (p *prefixer) DebugString(s string) {
	p.target.DebugString(p.prefix + s)
}

func (p *prefixer) IsDebug() bool {
	return p.target.IsDebug()
}
