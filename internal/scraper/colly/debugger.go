package collyscraper

import (
	"github.com/gocolly/colly/v2/debug"
	"go.uber.org/zap"
)

// zapDebugger forwards colly debug events to a zap logger.
type zapDebugger struct {
	logger *zap.Logger
}

var _ debug.Debugger = (*zapDebugger)(nil)

func (d *zapDebugger) Init() error {
	return nil
}

func (d *zapDebugger) Event(e *debug.Event) {
	fields := make([]zap.Field, 0, len(e.Values)+2)
	fields = append(fields,
		zap.Uint32("collector_id", e.CollectorID),
		zap.Uint32("request_id", e.RequestID),
	)
	for k, v := range e.Values {
		fields = append(fields, zap.String(k, v))
	}
	d.logger.Debug(e.Type, fields...)
}
