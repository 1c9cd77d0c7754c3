package dialer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/emirpiksel/dialara/internal/domain"
	"github.com/emirpiksel/dialara/internal/telephony"
	"github.com/emirpiksel/dialara/pkg/logger"
)

const (
	reasonTimeout  = "timeout"
	reasonAPIError = "api_error"
	reasonCanceled = "canceled"
)

// Outcome is the terminal result of one monitored call.
type Outcome struct {
	Status          domain.AttemptStatus
	DurationSeconds int
	FailureReason   string
}

// Monitor polls the telephony provider until a placed call reaches a
// terminal state or its timeout budget runs out. A call that outlives the
// budget is forced to failed; any report the provider delivers afterwards
// is ignored by the attempt store.
type Monitor struct {
	provider telephony.Provider
	interval time.Duration
	log      *logger.Logger
}

// NewMonitor creates a monitor polling at the given interval.
func NewMonitor(provider telephony.Provider, interval time.Duration, log *logger.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{provider: provider, interval: interval, log: log}
}

// Await blocks until the call identified by providerCallID ends, the timeout
// elapses, or ctx is canceled. It always returns a terminal outcome.
func (m *Monitor) Await(ctx context.Context, providerCallID string, timeout time.Duration) Outcome {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Outcome{Status: domain.AttemptStatusFailed, FailureReason: reasonCanceled}
		case <-deadline.C:
			m.log.Warn("call exceeded timeout budget",
				zap.String("provider_call_id", providerCallID),
				zap.Duration("timeout", timeout))
			return Outcome{Status: domain.AttemptStatusFailed, FailureReason: reasonTimeout}
		case <-ticker.C:
			status, err := m.provider.CallStatus(ctx, providerCallID)
			if err != nil {
				m.log.Error("call status poll failed",
					zap.String("provider_call_id", providerCallID),
					zap.Error(err))
				return Outcome{Status: domain.AttemptStatusFailed, FailureReason: reasonAPIError}
			}
			if !status.Ended {
				continue
			}
			out := Outcome{
				Status:          telephony.MapEndReason(status.EndReason),
				DurationSeconds: status.DurationSeconds,
			}
			if out.Status == domain.AttemptStatusFailed {
				out.FailureReason = status.EndReason
			}
			return out
		}
	}
}
