// Package notification delivers user-facing messages without blocking
// the playback state machine.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("dispatcher closed")

// Sender posts a text message to a channel.
type Sender interface {
	Send(ctx context.Context, channelID, text string) error
}

// Config holds dispatcher configuration.
type Config struct {
	RatePerSec  float64       // Sustained sends per second
	Burst       int           // Sends allowed in a burst
	SendTimeout time.Duration // Per-send deadline
	QueueSize   int           // Buffered messages before new ones are dropped
}

type message struct {
	seq       uint64
	channelID string
	text      string
}

// Dispatcher sends messages in submission order on a single worker,
// rate limited. Delivery is best effort: failures and overflow are logged.
type Dispatcher struct {
	sender  Sender
	config  Config
	limiter *rate.Limiter

	mu     sync.Mutex
	seq    uint64
	closed bool
	queue  chan message

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher creates a dispatcher and starts its worker.
func NewDispatcher(sender Sender, cfg Config) *Dispatcher {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sender:  sender,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		queue:   make(chan message, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify queues a message. It never blocks; when the queue is full or the
// dispatcher is closed the message is dropped.
func (d *Dispatcher) Notify(channelID, text string) {
	if channelID == "" || text == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		zlog.Debug().Msgf("notification: dropped after close: channel=%s", channelID)
		return
	}
	d.seq++
	select {
	case d.queue <- message{seq: d.seq, channelID: channelID, text: text}:
	default:
		zlog.Warn().Msgf("notification: queue full, message dropped: seq=%d channel=%s", d.seq, channelID)
	}
}

// Pending returns the number of queued messages.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		if err := d.limiter.Wait(d.ctx); err != nil {
			zlog.Warn().Msgf("notification: dropped on shutdown: seq=%d channel=%s", msg.seq, msg.channelID)
			continue
		}
		d.send(msg)
	}
}

// send delivers one message, giving up after the send timeout.
func (d *Dispatcher) send(msg message) {
	ctx, cancel := context.WithTimeout(d.ctx, d.config.SendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.sender.Send(ctx, msg.channelID, msg.text)
	}()

	select {
	case err := <-done:
		if err != nil {
			zlog.Warn().Err(err).Msgf("notification: send failed: seq=%d channel=%s", msg.seq, msg.channelID)
			return
		}
		zlog.Debug().Msgf("notification: sent: seq=%d channel=%s", msg.seq, msg.channelID)
	case <-ctx.Done():
		zlog.Warn().Msgf("notification: send timed out: seq=%d channel=%s timeout=%v", msg.seq, msg.channelID, d.config.SendTimeout)
	}
}

// Close stops accepting messages and drains the queue until ctx is done;
// whatever remains afterwards is dropped.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return errors.Wrap(ctx.Err(), "notification drain interrupted")
	}
}
