// Package janitor reaps rooms that have gone quiet. Any mutating engine
// call refreshes a session's last-activity stamp; sessions idle past the
// TTL are destroyed and their player-index entries pruned. Disconnects
// never remove players, so the TTL sweep is the only path out of a room.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/groupchat-games/trivia/internal/errors"
	"github.com/groupchat-games/trivia/internal/room"
	"github.com/groupchat-games/trivia/internal/telemetry"
)

const (
	defaultInterval = time.Hour
	defaultTTL      = 2 * time.Hour
)

type Config struct {
	Registry *room.Registry
	Clock    clockwork.Clock

	Interval time.Duration
	TTL      time.Duration
}

type Janitor struct {
	reg   *room.Registry
	clock clockwork.Clock

	interval time.Duration
	ttl      time.Duration
}

func New(c Config) *Janitor {
	j := &Janitor{
		reg:      c.Registry,
		clock:    c.Clock,
		interval: c.Interval,
		ttl:      c.TTL,
	}

	if j.interval <= 0 {
		j.interval = defaultInterval
	}
	if j.ttl <= 0 {
		j.ttl = defaultTTL
	}

	return j
}

// Run sweeps on every tick until the context is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := j.clock.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			j.Sweep(ctx)
		}
	}
}

// Sweep removes every session idle past the TTL and returns how many it
// reaped. A failure on one room never aborts the rest of the sweep.
func (j *Janitor) Sweep(ctx context.Context) int {
	reaped := 0

	for _, code := range j.reg.RoomCodes() {
		idle, err := j.reg.IdleSince(code)
		if err != nil {
			// Raced with an explicit teardown; nothing to do.
			if errors.IsCode(err, errors.CodeNotFound) {
				continue
			}
			slog.ErrorContext(ctx, "janitor: inspect room failed", "room", code, "error", err)
			continue
		}

		if idle <= j.ttl {
			continue
		}

		if err := j.reg.EndSession(code); err != nil {
			if !errors.IsCode(err, errors.CodeNotFound) {
				slog.ErrorContext(ctx, "janitor: reap room failed", "room", code, "error", err)
			}
			continue
		}

		slog.InfoContext(ctx, "janitor: reaped idle room", "room", code, "idle", idle)
		telemetry.SessionsReaped.Inc()
		reaped++
	}

	return reaped
}
