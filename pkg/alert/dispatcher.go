package alert

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentgov/governance-core/pkg/violation"
)

// OnRateLimited and OnAlertDispatched are the dispatcher's hooks.
type OnRateLimited func(channel ChannelType, tenantID string, v violation.Violation)
type OnAlertDispatched func(result ChannelResult, v violation.Violation)

// Dispatcher fans a violation out to every configured channel,
// spec.md §4.H.
type Dispatcher struct {
	channels    []Channel
	limiter     RateLimiter
	policies    map[ChannelType]RateLimitPolicy
	onRateLimited     OnRateLimited
	onAlertDispatched OnAlertDispatched
	detailsURLFor     func(v violation.Violation) string
}

// NewDispatcher builds a Dispatcher. limiter may be nil, in which
// case rate limiting is skipped entirely.
func NewDispatcher(channels []Channel, limiter RateLimiter, policies map[ChannelType]RateLimitPolicy) *Dispatcher {
	return &Dispatcher{channels: channels, limiter: limiter, policies: policies}
}

func (d *Dispatcher) OnRateLimited(fn OnRateLimited)         { d.onRateLimited = fn }
func (d *Dispatcher) OnAlertDispatched(fn OnAlertDispatched) { d.onAlertDispatched = fn }
func (d *Dispatcher) DetailsURLFunc(fn func(v violation.Violation) string) { d.detailsURLFor = fn }

// Dispatch implements spec.md §4.H's four-step pipeline, fanning
// channel sends out concurrently with bounded parallelism (default =
// number of channels), per spec.md §5.
func (d *Dispatcher) Dispatch(ctx context.Context, v violation.Violation, tenantID string) DispatchResult {
	payload := d.buildPayload(v)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		result  DispatchResult
	)

	for _, ch := range d.channels {
		ch := ch
		if !ch.ShouldAlert(v) {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			cr := d.dispatchOne(ctx, ch, v, tenantID, payload)

			mu.Lock()
			defer mu.Unlock()
			result.Results = append(result.Results, cr)
			if cr.Attempted {
				result.ChannelsAttempted++
			}
			if cr.RateLimited {
				result.ChannelsRateLimited++
			}
			if cr.Outcome.Success {
				result.ChannelsSucceeded++
			}
		}()
	}
	wg.Wait()

	return result
}

func (d *Dispatcher) dispatchOne(ctx context.Context, ch Channel, v violation.Violation, tenantID string, payload Payload) ChannelResult {
	cfg := ch.Config()

	if d.limiter != nil {
		policy, ok := d.policies[cfg.Type]
		if ok {
			allowed, err := d.limiter.Allow(ctx, cfg.Type, tenantID, policy)
			if err == nil && !allowed {
				if d.onRateLimited != nil {
					d.onRateLimited(cfg.Type, tenantID, v)
				}
				return ChannelResult{ChannelType: cfg.Type, RateLimited: true}
			}
		}
	}

	outcome := ch.Send(ctx, payload)
	cr := ChannelResult{ChannelType: cfg.Type, Attempted: true, Outcome: outcome}
	if d.onAlertDispatched != nil {
		d.onAlertDispatched(cr, v)
	}
	return cr
}

func (d *Dispatcher) buildPayload(v violation.Violation) Payload {
	detailsURL := ""
	if d.detailsURLFor != nil {
		detailsURL = d.detailsURLFor(v)
	}
	return Payload{
		ID:         uuid.NewString(),
		Violation:  v,
		Priority:   v.Severity,
		Title:      string(v.Type) + " violation detected",
		Summary:    v.Summary,
		DetailsURL: detailsURL,
		Timestamp:  time.Now().UTC(),
		Mention:    v.Severity == violation.SeverityCritical,
	}
}
