package dialer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/emirpiksel/dialara/internal/domain"
	"github.com/emirpiksel/dialara/internal/telephony"
	"github.com/emirpiksel/dialara/pkg/logger"
)

// pollProvider serves a fixed sequence of status polls.
type pollProvider struct {
	mu      sync.Mutex
	results []telephony.StatusResult
	err     error
}

func (p *pollProvider) PlaceCall(context.Context, telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	return telephony.PlaceCallResult{ProviderCallID: "call-1"}, nil
}

func (p *pollProvider) CallStatus(context.Context, string) (telephony.StatusResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return telephony.StatusResult{}, p.err
	}
	if len(p.results) == 0 {
		return telephony.StatusResult{}, nil
	}
	next := p.results[0]
	if len(p.results) > 1 {
		p.results = p.results[1:]
	}
	return next, nil
}

func nopLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func TestMonitorReturnsMappedOutcome(t *testing.T) {
	provider := &pollProvider{results: []telephony.StatusResult{
		{Ended: false},
		{Ended: true, EndReason: "customer-ended-call", DurationSeconds: 42},
	}}
	m := NewMonitor(provider, time.Millisecond, nopLogger())

	out := m.Await(context.Background(), "call-1", time.Second)
	if out.Status != domain.AttemptStatusCompleted {
		t.Fatalf("status = %s, want completed", out.Status)
	}
	if out.DurationSeconds != 42 {
		t.Errorf("duration = %d, want 42", out.DurationSeconds)
	}
	if out.FailureReason != "" {
		t.Errorf("failure reason = %q, want empty", out.FailureReason)
	}
}

func TestMonitorForcesFailureOnTimeout(t *testing.T) {
	provider := &pollProvider{results: []telephony.StatusResult{{Ended: false}}}
	m := NewMonitor(provider, time.Millisecond, nopLogger())

	out := m.Await(context.Background(), "call-1", 20*time.Millisecond)
	if out.Status != domain.AttemptStatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if out.FailureReason != "timeout" {
		t.Errorf("failure reason = %q, want timeout", out.FailureReason)
	}
}

func TestMonitorFailsOnPollError(t *testing.T) {
	provider := &pollProvider{err: errors.New("connection refused")}
	m := NewMonitor(provider, time.Millisecond, nopLogger())

	out := m.Await(context.Background(), "call-1", time.Second)
	if out.Status != domain.AttemptStatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if out.FailureReason != "api_error" {
		t.Errorf("failure reason = %q, want api_error", out.FailureReason)
	}
}

func TestMonitorUnknownEndReasonRecordsReason(t *testing.T) {
	provider := &pollProvider{results: []telephony.StatusResult{
		{Ended: true, EndReason: "carrier-congestion"},
	}}
	m := NewMonitor(provider, time.Millisecond, nopLogger())

	out := m.Await(context.Background(), "call-1", time.Second)
	if out.Status != domain.AttemptStatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if out.FailureReason != "carrier-congestion" {
		t.Errorf("failure reason = %q, want the provider end reason", out.FailureReason)
	}
}
