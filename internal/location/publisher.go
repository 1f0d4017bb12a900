package location

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/inertia-live/inertia-go/internal/auth"
	"github.com/inertia-live/inertia-go/internal/domain"
	"github.com/inertia-live/inertia-go/internal/observability"
)

var (
	ErrNotReady       = errors.New("location publisher not ready: missing game id or access token")
	ErrNoRealtimePath = errors.New("no realtime channel available")
)

// RealtimeSender is the channel-backed publish path.
type RealtimeSender interface {
	Send(v any) error
}

// RestPublisher is the one-shot REST fallback path.
type RestPublisher interface {
	PublishLocation(ctx context.Context, gameID string, sample domain.LocationSample) error
}

// Config tunes a publisher. SenderSource is consulted on every publish so a
// channel replaced by a reconnect is picked up immediately; it returns false
// when no live channel exists, which is always the case in pure background
// execution.
type Config struct {
	MinDisplacementMeters float64
	MinInterval           time.Duration

	Credentials  *auth.SessionCredentials
	Sampler      Sampler
	SenderSource func() (RealtimeSender, bool)
	Rest         RestPublisher

	RestTimeout time.Duration
	Logger      *slog.Logger
}

// Publisher samples device position in the background and delivers accepted
// samples to the server. Publishing is best effort: a failed delivery is
// dropped, the next sample supersedes it.
type Publisher struct {
	cfg Config

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	lastMu        sync.Mutex
	lastPublished *Position
}

func NewPublisher(cfg Config) *Publisher {
	if cfg.MinDisplacementMeters <= 0 {
		cfg.MinDisplacementMeters = 50
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 15 * time.Second
	}
	if cfg.RestTimeout <= 0 {
		cfg.RestTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Publisher{cfg: cfg}
}

// Start launches the background sampling task. It is gated on the session
// credentials having both a game id and an access token. Starting an
// already-running publisher is a no-op.
func (p *Publisher) Start(ctx context.Context) error {
	if _, _, ok := p.cfg.Credentials.Snapshot(); !ok {
		return ErrNotReady
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	positions, err := p.cfg.Sampler.Watch(runCtx)
	if err != nil {
		cancel()
		return err
	}

	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(runCtx, positions)
	return nil
}

// Stop ends the background task and waits for it to exit. Safe to call more
// than once.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
}

func (p *Publisher) run(ctx context.Context, positions <-chan Position) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case pos, ok := <-positions:
			if !ok {
				return
			}
			if !p.accept(pos) {
				continue
			}
			p.publish(ctx, pos)
		}
	}
}

// accept applies the adaptive sampling policy: the first sample always
// publishes; afterwards a sample must move at least MinDisplacementMeters or
// arrive at least MinInterval after the last published one.
func (p *Publisher) accept(pos Position) bool {
	p.lastMu.Lock()
	defer p.lastMu.Unlock()
	last := p.lastPublished
	if last == nil {
		p.lastPublished = &pos
		return true
	}
	moved := haversineMeters(last.Sample.Lat, last.Sample.Lng, pos.Sample.Lat, pos.Sample.Lng)
	elapsed := pos.Time.Sub(last.Time)
	if moved < p.cfg.MinDisplacementMeters && elapsed < p.cfg.MinInterval {
		return false
	}
	p.lastPublished = &pos
	return true
}

func (p *Publisher) publish(ctx context.Context, pos Position) {
	_, gameID, ok := p.cfg.Credentials.Snapshot()
	if !ok {
		p.cfg.Logger.Debug("skipping publish, session credentials gone")
		return
	}

	if err := p.publishRealtime(gameID, pos.Sample); err == nil {
		observability.RecordLocationPublish("realtime", "success")
		return
	}

	restCtx, cancel := context.WithTimeout(ctx, p.cfg.RestTimeout)
	defer cancel()
	if err := p.cfg.Rest.PublishLocation(restCtx, gameID, pos.Sample); err != nil {
		observability.RecordLocationPublish("rest", "error")
		p.cfg.Logger.Debug("location publish dropped", "error", err)
		return
	}
	observability.RecordLocationPublish("rest", "success")
}

func (p *Publisher) publishRealtime(gameID string, sample domain.LocationSample) error {
	if p.cfg.SenderSource == nil {
		return ErrNoRealtimePath
	}
	sender, ok := p.cfg.SenderSource()
	if !ok {
		return ErrNoRealtimePath
	}
	return sender.Send(domain.LocationPublish{Location: sample, GameID: gameID})
}
