package logger

import (
	"fmt"
	"log/slog"
)

// Adapter adapts a slog.Logger to printf-style logging interfaces such as badger.Logger and cron.Logger.
type Adapter struct {
	logger *slog.Logger
}

// New returns a printf-style logger tagged with component.
func New(base *slog.Logger, component string) *Adapter {
	if base == nil {
		base = slog.Default()
	}
	return &Adapter{logger: base.With("component", component)}
}

func (p *Adapter) Errorf(format string, args ...any) {
	p.logger.Error(fmt.Sprintf(format, args...))
}

func (p *Adapter) Warningf(format string, args ...any) {
	p.logger.Warn(fmt.Sprintf(format, args...))
}

func (p *Adapter) Infof(format string, args ...any) {
	p.logger.Info(fmt.Sprintf(format, args...))
}

func (p *Adapter) Debugf(format string, args ...any) {
	p.logger.Debug(fmt.Sprintf(format, args...))
}

// Printf logs at info level, for libraries that only know Printf (robfig/cron).
func (p *Adapter) Printf(format string, args ...any) {
	p.logger.Info(fmt.Sprintf(format, args...))
}
