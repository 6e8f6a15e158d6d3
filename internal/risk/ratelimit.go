package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/radieske/wager-platform/internal/shared/clock"
)

// RateLimit rejeita quando o usuário excede o limite de apostas na janela
// de 60s ou de 3600s. Janela deslizante sobre uma lista de timestamps em
// memória, podada a cada avaliação.
type RateLimit struct {
	clk       clock.Clock
	perMinute int
	perHour   int

	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewRateLimit(clk clock.Clock, perMinute, perHour int) *RateLimit {
	return &RateLimit{
		clk:       clk,
		perMinute: perMinute,
		perHour:   perHour,
		hits:      make(map[string][]time.Time),
	}
}

func (r *RateLimit) Name() string { return "rate_limit" }

func (r *RateLimit) Evaluate(_ context.Context, t *Ticket) *Rejection {
	now := r.clk.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	// poda à janela de 1h; o horizonte maior cobre o menor
	kept := r.hits[t.UserID][:0]
	for _, ts := range r.hits[t.UserID] {
		if now.Sub(ts) <= time.Hour {
			kept = append(kept, ts)
		}
	}
	r.hits[t.UserID] = kept

	lastMinute := 0
	for _, ts := range kept {
		if now.Sub(ts) <= time.Minute {
			lastMinute++
		}
	}

	if lastMinute >= r.perMinute {
		return &Rejection{
			Check:    r.Name(),
			Severity: Medium,
			Reason:   "rate_limited",
			Detail:   fmt.Sprintf("user %s placed %d wagers in the last 60s", t.UserID, lastMinute),
		}
	}
	if len(kept) >= r.perHour {
		return &Rejection{
			Check:    r.Name(),
			Severity: High,
			Reason:   "rate_limited",
			Detail:   fmt.Sprintf("user %s placed %d wagers in the last hour", t.UserID, len(kept)),
		}
	}

	r.hits[t.UserID] = append(kept, now)
	return nil
}
