package session

import (
	"encoding/base64"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// pacer drains queued mu-law frames onto the transport at the line's
// real-time cadence, one frame per tick. It owns the outbound media
// path so synthesis can run ahead of playback without flooding the
// provider. A frame with nil data is the poison value that stops the
// drain after everything queued before it has been sent.
type pacer struct {
	transport Transport
	interval  time.Duration
	queue     chan pacedFrame
	logger    *slog.Logger

	streamSid atomic.Value // string

	// writeMu and gen serialize interrupt against the drain loop.
	// Frames are stamped with the generation they were queued under;
	// an interrupt bumps it, so a stale frame the drain loop had
	// already dequeued can never be written after the clear message.
	writeMu sync.Mutex
	gen     atomic.Uint64

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

type pacedFrame struct {
	data []byte
	gen  uint64
}

func newPacer(transport Transport, interval time.Duration, capacity int, logger *slog.Logger) *pacer {
	p := &pacer{
		transport: transport,
		interval:  interval,
		queue:     make(chan pacedFrame, capacity),
		logger:    logger,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	p.streamSid.Store("")
	return p
}

func (p *pacer) setStreamSid(sid string) {
	p.streamSid.Store(sid)
}

func (p *pacer) sid() string {
	return p.streamSid.Load().(string)
}

// enqueue blocks until the frame is queued or the pacer has exited.
// Reports whether the frame was accepted.
func (p *pacer) enqueue(frame []byte) bool {
	select {
	case p.queue <- pacedFrame{data: frame, gen: p.gen.Load()}:
		return true
	case <-p.done:
		return false
	}
}

// run is the pacer goroutine. It exits on the poison frame, on stop,
// or silently when the transport write fails; the ingest loop notices
// the dead transport on its next read.
func (p *pacer) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			return
		case frame := <-p.queue:
			if frame.data == nil {
				return
			}
			msg := OutboundMedia{
				Event:     EventMedia,
				StreamSid: p.sid(),
				Media:     OutboundPayload{Payload: base64.StdEncoding.EncodeToString(frame.data)},
			}
			p.writeMu.Lock()
			var err error
			if p.gen.Load() == frame.gen {
				err = p.transport.Write(msg)
			}
			p.writeMu.Unlock()
			if err != nil {
				p.logger.Debug("pacer write failed, stopping", slog.String("error", err.Error()))
				return
			}
			select {
			case <-ticker.C:
			case <-p.quit:
				return
			}
		}
	}
}

// interrupt discards every frame queued but not yet written and sends
// msg in its place. Draining and writing happen under the write lock
// with a bumped generation, so no stale audio can follow msg onto the
// wire.
func (p *pacer) interrupt(msg any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.gen.Add(1)
	for {
		select {
		case <-p.queue:
		default:
			return p.transport.Write(msg)
		}
	}
}

// stop requests shutdown and waits for the queue to drain, bounded by
// how long a full queue takes to play out. A pacer that still has not
// exited by then is cut off.
func (p *pacer) stop() {
	p.stopOnce.Do(func() {
		select {
		case p.queue <- pacedFrame{}:
		case <-p.done:
			return
		default:
			// Queue full: no room for the poison frame, drop the tail.
			close(p.quit)
			<-p.done
			return
		}

		drain := time.Duration(cap(p.queue)+1)*p.interval + time.Second
		select {
		case <-p.done:
		case <-time.After(drain):
			close(p.quit)
			<-p.done
		}
	})
}
