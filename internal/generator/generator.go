// Package generator simulates a live monitoring feed: it seeds the store with
// a fixed startup set and then, on every tick, emits one random canned event
// with a fixed probability.
package generator

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/fleetwatch/internal/clock"
	"github.com/JakeFAU/fleetwatch/internal/notify"
)

const (
	// DefaultInterval is the tick period.
	DefaultInterval = 30 * time.Second
	// DefaultProbability is the chance a tick emits a notification.
	DefaultProbability = 0.3
)

// Random is the source of randomness for emission decisions and selection.
type Random interface {
	Float64() float64
	IntN(n int) int
}

// Sink receives generated drafts. *notify.Store satisfies it.
type Sink interface {
	Add(d notify.Draft) notify.Notification
}

// Config controls generator behavior. Zero values fall back to defaults,
// except Seed which is honoured as given.
type Config struct {
	Interval    time.Duration
	Probability float64
	// Seed controls whether Run seeds the startup set before ticking.
	Seed bool
	// Catalogue overrides the canned events (mainly for tests).
	Catalogue []notify.Draft
}

// Generator feeds simulated notifications into a Sink.
type Generator struct {
	sink      Sink
	clock     clock.Clock
	rng       Random
	cfg       Config
	catalogue []notify.Draft
	logger    *zap.Logger
}

// New creates a Generator.
func New(sink Sink, clk clock.Clock, rng Random, cfg Config, logger *zap.Logger) *Generator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Probability <= 0 {
		cfg.Probability = DefaultProbability
	}
	catalogue := cfg.Catalogue
	if len(catalogue) == 0 {
		catalogue = Catalogue()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		sink:      sink,
		clock:     clk,
		rng:       rng,
		cfg:       cfg,
		catalogue: catalogue,
		logger:    logger,
	}
}

// NewRandom returns the default random source. A zero seed derives one from
// the current time.
func NewRandom(seed uint64) Random {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Seed synchronously adds the startup set.
func (g *Generator) Seed() []notify.Notification {
	drafts := StartupSet()
	out := make([]notify.Notification, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, g.sink.Add(d))
	}
	g.logger.Info("startup notifications seeded", zap.Int("count", len(out)))
	return out
}

// Tick runs one generator step. It reports whether a notification was added.
func (g *Generator) Tick() (notify.Notification, bool) {
	if g.rng.Float64() >= g.cfg.Probability {
		return notify.Notification{}, false
	}
	d := g.catalogue[g.rng.IntN(len(g.catalogue))]
	n := g.sink.Add(d)
	g.logger.Debug("simulated notification emitted",
		zap.String("id", n.ID),
		zap.String("title", n.Title),
		zap.String("severity", string(n.Severity)),
	)
	return n, true
}

// Run seeds (when configured) and ticks until ctx is canceled.
func (g *Generator) Run(ctx context.Context) {
	if g.cfg.Seed {
		g.Seed()
	}
	ticker := g.clock.NewTicker(g.cfg.Interval)
	defer ticker.Stop()
	g.logger.Info("generator started",
		zap.Duration("interval", g.cfg.Interval),
		zap.Float64("probability", g.cfg.Probability),
	)
	for {
		select {
		case <-ctx.Done():
			g.logger.Info("generator stopped")
			return
		case <-ticker.C():
			g.Tick()
		}
	}
}
