package s3blob

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/batchauction/auctiond/internal/domain"
)

// Batches are flushed early once the buffer reaches this size.
const flushThreshold = 4 * 1024 * 1024

// EventArchiver tails the signal bus and persists every auction event as
// JSONL batches in object storage, one file per channel per flush. Settlement
// snapshots cover final state; the archive keeps the event history that led
// there.
type EventArchiver struct {
	bus      domain.SignalBus
	writer   *Writer
	channels []string
	interval time.Duration
	logger   *slog.Logger
}

func NewEventArchiver(bus domain.SignalBus, writer *Writer, channels []string, interval time.Duration, logger *slog.Logger) *EventArchiver {
	return &EventArchiver{
		bus:      bus,
		writer:   writer,
		channels: channels,
		interval: interval,
		logger:   logger,
	}
}

// Run tails every configured channel until ctx is cancelled.
func (a *EventArchiver) Run(ctx context.Context) error {
	for _, ch := range a.channels {
		go a.tail(ctx, ch)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (a *EventArchiver) tail(ctx context.Context, channel string) {
	msgs, err := a.bus.Subscribe(ctx, channel)
	if err != nil {
		a.logger.Error("archiver: subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
		return
	}

	var buf bytes.Buffer
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		a.flush(channel, &buf)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case msg, ok := <-msgs:
			if !ok {
				flush()
				return
			}
			buf.Write(msg)
			buf.WriteByte('\n')
			if buf.Len() >= flushThreshold {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// flush uploads the buffered batch and resets the buffer. Upload errors drop
// the batch: the durable bus streams remain the replay source.
func (a *EventArchiver) flush(channel string, buf *bytes.Buffer) {
	path := "events/" + channel + "/" + time.Now().UTC().Format("2006/01/02/150405.000") + ".jsonl"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	if int64(buf.Len()) >= minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf.Bytes()), "application/x-ndjson", minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf.Bytes()), "application/x-ndjson")
	}
	if err != nil {
		a.logger.Error("archiver: flush failed",
			slog.String("channel", channel),
			slog.Int("bytes", buf.Len()),
			slog.String("error", err.Error()))
	} else {
		a.logger.Debug("archiver: batch flushed",
			slog.String("path", path),
			slog.Int("bytes", buf.Len()))
	}
	buf.Reset()
}
