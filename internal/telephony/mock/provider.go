// Package mock simulates the telephony provider for local runs.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emirpiksel/dialara/internal/config"
	"github.com/emirpiksel/dialara/internal/telephony"
)

// Provider simulates outbound call behaviour: each placed call rings for a
// random short duration, then ends with a weighted random reason.
type Provider struct {
	successRate float64
	minRing     time.Duration
	maxRing     time.Duration

	mu    sync.Mutex
	rng   *rand.Rand
	calls map[string]simulatedCall
}

type simulatedCall struct {
	endsAt   time.Time
	reason   string
	duration int
}

// NewProvider constructs a simulator with seeded randomness.
func NewProvider(cfg config.ProviderConfig) *Provider {
	rate := cfg.MockSuccessRate
	if rate <= 0 || rate > 1 {
		rate = 0.8
	}
	return &Provider{
		successRate: rate,
		minRing:     2 * time.Second,
		maxRing:     10 * time.Second,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		calls:       make(map[string]simulatedCall),
	}
}

// PlaceCall registers a simulated call and returns its id immediately.
func (p *Provider) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	if err := ctx.Err(); err != nil {
		return telephony.PlaceCallResult{}, err
	}
	if req.PhoneNumber == "" {
		return telephony.PlaceCallResult{}, fmt.Errorf("mock provider: empty destination number")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ring := p.minRing + time.Duration(p.rng.Int63n(int64(p.maxRing-p.minRing)))
	call := simulatedCall{endsAt: time.Now().Add(ring)}

	roll := p.rng.Float64()
	switch {
	case roll <= p.successRate:
		call.reason = "completed"
		call.duration = 30 + p.rng.Intn(120)
	case roll <= p.successRate+0.1:
		call.reason = "voicemail"
		call.duration = 10 + p.rng.Intn(20)
	case roll <= p.successRate+0.15:
		call.reason = "busy"
	default:
		call.reason = "no-answer"
	}

	id := uuid.NewString()
	p.calls[id] = call

	return telephony.PlaceCallResult{ProviderCallID: id}, nil
}

// CallStatus reports whether the simulated call has ended yet.
func (p *Provider) CallStatus(ctx context.Context, providerCallID string) (telephony.StatusResult, error) {
	if err := ctx.Err(); err != nil {
		return telephony.StatusResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	call, ok := p.calls[providerCallID]
	if !ok {
		return telephony.StatusResult{}, fmt.Errorf("mock provider: unknown call %s", providerCallID)
	}

	if time.Now().Before(call.endsAt) {
		return telephony.StatusResult{Ended: false}, nil
	}

	delete(p.calls, providerCallID)
	return telephony.StatusResult{
		Ended:           true,
		EndReason:       call.reason,
		DurationSeconds: call.duration,
	}, nil
}
