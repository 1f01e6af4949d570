// Package alert implements the alert dispatcher: per-channel severity
// gating, rate limiting, and fan-out send with result aggregation, per
// spec.md §4.H.
package alert

import (
	"time"

	"github.com/agentgov/governance-core/pkg/violation"
)

// ChannelType names a known channel variant.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelSlack   ChannelType = "slack"
	ChannelWebhook ChannelType = "webhook"
)

// ChannelConfig is the shared configuration surface every channel
// variant carries; channel-specific fields live on the concrete
// channel implementation.
type ChannelConfig struct {
	Type           ChannelType
	Enabled        bool
	MinSeverity    violation.Severity
	ViolationTypes []violation.Type // empty means "all types"
	MentionOnCritical bool
}

// Payload is what a channel actually sends.
type Payload struct {
	ID         string
	Violation  violation.Violation
	Priority   violation.Severity
	Title      string
	Summary    string
	DetailsURL string
	Timestamp  time.Time
	Mention    bool
}

// SendOutcome is what Channel.Send reports back.
type SendOutcome struct {
	Success   bool
	MessageID string
	Error     string
	DurationMs float64
}

// ChannelResult is one channel's contribution to a DispatchResult.
type ChannelResult struct {
	ChannelType ChannelType
	Attempted   bool
	RateLimited bool
	Outcome     SendOutcome
}

// DispatchResult aggregates a dispatch across all configured channels.
type DispatchResult struct {
	ChannelsAttempted   int
	ChannelsSucceeded   int
	ChannelsRateLimited int
	Results             []ChannelResult
}
