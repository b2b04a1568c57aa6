// Package ratelimit admits provider requests through two in-memory token
// buckets (per-second, per-minute) and a daily counter persisted across
// process restarts. The daily window resets at midnight KST.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kofinhq/kofin/internal/core"
)

type Limits struct {
	PerSecond int
	PerMinute int
	PerDay    int
}

// DefaultLimits returns the per-provider admission budget.
func DefaultLimits(provider string) Limits {
	switch provider {
	case "dart":
		return Limits{PerSecond: 2, PerMinute: 60, PerDay: 20000}
	case "kis":
		return Limits{PerSecond: 5, PerMinute: 100, PerDay: 100000}
	case "ecos":
		return Limits{PerSecond: 2, PerMinute: 30, PerDay: 50000}
	case "kosis":
		return Limits{PerSecond: 1, PerMinute: 20, PerDay: 10000}
	default:
		return Limits{PerSecond: 1, PerMinute: 30, PerDay: 10000}
	}
}

// Status is a point-in-time view of the daily budget.
type Status struct {
	Provider         string    `json:"provider"`
	DailyUsed        int       `json:"daily_used"`
	DailyLimit       int       `json:"daily_limit"`
	DailyRemaining   int       `json:"daily_remaining"`
	DailyPercentUsed float64   `json:"daily_percent_used"`
	NearLimit        bool      `json:"near_limit"`
	ResetAt          time.Time `json:"reset_at"`
}

// persistedState is the on-disk shape of rate-limits/<provider>.json.
type persistedState struct {
	DailyUsed int       `json:"dailyUsed"`
	ResetAt   time.Time `json:"resetAt"`
}

type Limiter struct {
	provider  string
	limits    Limits
	statePath string
	log       *zap.Logger
	now       func() time.Time

	waitRounds   int
	waitInterval time.Duration

	mu            sync.Mutex
	secTokens     int
	minTokens     int
	lastSecRefill time.Time
	lastMinRefill time.Time
	dailyUsed     int
	resetAt       time.Time
}

// New loads any persisted daily counter from stateDir and returns a ready
// limiter. A counter whose reset instant has passed is zeroed.
func New(provider string, limits Limits, stateDir string, log *zap.Logger) (*Limiter, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Limiter{
		provider:     provider,
		limits:       limits,
		statePath:    filepath.Join(stateDir, "rate-limits", provider+".json"),
		log:          log.Named("ratelimit"),
		now:          time.Now,
		waitRounds:   5,
		waitInterval: time.Second,
		secTokens:    limits.PerSecond,
		minTokens:    limits.PerMinute,
	}
	now := l.now()
	l.lastSecRefill = now
	l.lastMinRefill = now
	l.resetAt = core.NextMidnightKST(now)

	if err := l.loadState(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Limiter) loadState() error {
	data, err := os.ReadFile(l.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("ratelimit: reading state %s: %w", l.statePath, err)
	}
	var st persistedState
	if err := json.Unmarshal(data, &st); err != nil {
		// A corrupt state file starts a fresh day rather than blocking.
		l.log.Warn("discarding corrupt rate-limit state", zap.String("path", l.statePath), zap.Error(err))
		return nil
	}
	if !st.ResetAt.IsZero() && l.now().Before(st.ResetAt) {
		l.dailyUsed = st.DailyUsed
		l.resetAt = st.ResetAt
	}
	return nil
}

func (l *Limiter) persistState() {
	st := persistedState{DailyUsed: l.dailyUsed, ResetAt: l.resetAt}
	data, err := json.Marshal(st)
	if err != nil {
		l.log.Warn("marshal rate-limit state", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(l.statePath), 0o755); err != nil {
		l.log.Warn("create rate-limit state dir", zap.Error(err))
		return
	}
	if err := os.WriteFile(l.statePath, data, 0o644); err != nil {
		l.log.Warn("write rate-limit state", zap.String("path", l.statePath), zap.Error(err))
	}
}

// refill tops buckets back to capacity once their interval has elapsed and
// rolls the daily window past midnight KST. Caller holds l.mu.
func (l *Limiter) refill(now time.Time) {
	if !now.Before(l.resetAt) {
		l.dailyUsed = 0
		l.resetAt = core.NextMidnightKST(now)
		l.persistState()
	}
	if now.Sub(l.lastSecRefill) >= time.Second {
		l.secTokens = l.limits.PerSecond
		l.lastSecRefill = now
	}
	if now.Sub(l.lastMinRefill) >= time.Minute {
		l.minTokens = l.limits.PerMinute
		l.lastMinRefill = now
	}
}

// Acquire admits one request, blocking for bounded bucket-refill rounds.
// It returns the remaining daily budget. Exhaustion of the daily budget
// fails fast; bucket starvation past the retry bound fails with a
// rate-limited error as well.
func (l *Limiter) Acquire(ctx context.Context) (int, error) {
	for round := 0; ; round++ {
		l.mu.Lock()
		now := l.now()
		l.refill(now)

		if l.dailyUsed >= l.limits.PerDay {
			l.mu.Unlock()
			return 0, core.RateLimitedError(l.provider,
				fmt.Sprintf("daily quota of %d exhausted; resets at %s", l.limits.PerDay, l.resetAt.Format(time.RFC3339)))
		}

		if l.secTokens > 0 && l.minTokens > 0 {
			l.secTokens--
			l.minTokens--
			l.dailyUsed++
			remaining := l.limits.PerDay - l.dailyUsed
			l.persistState()
			l.mu.Unlock()
			return remaining, nil
		}

		// Wait for the nearer refill, never longer than the per-round cap.
		wait := time.Second - now.Sub(l.lastSecRefill)
		if l.secTokens > 0 {
			wait = time.Minute - now.Sub(l.lastMinRefill)
		}
		if wait > l.waitInterval {
			wait = l.waitInterval
		}
		if wait <= 0 {
			wait = time.Millisecond
		}
		l.mu.Unlock()

		if round >= l.waitRounds {
			return 0, core.RateLimitedError(l.provider,
				fmt.Sprintf("rate-limit wait exhausted after %d rounds", l.waitRounds))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
}

// GetStatus reports the daily budget; NearLimit trips above 80% used.
func (l *Limiter) GetStatus() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(l.now())

	pct := 0.0
	if l.limits.PerDay > 0 {
		pct = float64(l.dailyUsed) / float64(l.limits.PerDay) * 100
	}
	return Status{
		Provider:         l.provider,
		DailyUsed:        l.dailyUsed,
		DailyLimit:       l.limits.PerDay,
		DailyRemaining:   l.limits.PerDay - l.dailyUsed,
		DailyPercentUsed: pct,
		NearLimit:        pct > 80,
		ResetAt:          l.resetAt,
	}
}
