package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pipeline batches Events arriving on a bounded channel and flushes them to
// a Writer on a size/time trigger, the same shape as the teacher's
// history.Pipeline.Run: a ticker plus a channel select, never blocking the
// producer on a slow database.
type Pipeline struct {
	writer        *Writer
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger
}

func NewPipeline(writer *Writer, batchSize int, flushInterval time.Duration, logger *zap.Logger) *Pipeline {
	return &Pipeline{writer: writer, batchSize: batchSize, flushInterval: flushInterval, logger: logger}
}

// Run drains events until the channel is closed or ctx is done, flushing
// whatever remains buffered on either exit path. It never touches reactor
// state: the reactor only ever sends on events, once per turn.
func (p *Pipeline) Run(ctx context.Context, events <-chan *Event) {
	var batch []*Event
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	flush := func(c context.Context) {
		if len(batch) == 0 {
			return
		}
		if _, err := p.writer.FlushBatch(c, batch); err != nil {
			p.logger.Error("audit: flush failed", zap.Error(err), zap.Int("rows", len(batch)))
		}
		batch = nil
	}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(shutdownCtx)
			cancel()
			return

		case e, ok := <-events:
			if !ok {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				flush(shutdownCtx)
				cancel()
				return
			}
			batch = append(batch, e)
			if len(batch) >= p.batchSize {
				flush(ctx)
			}

		case <-ticker.C:
			flush(ctx)
		}
	}
}
