package analytics

import "time"

// TopicDecision is the stream rate limit decisions are published to.
const TopicDecision = "ratelimit.decision"

// DecisionEvent represents a single rate limit decision taken by the gateway.
type DecisionEvent struct {
	Key       string    `json:"key"`
	ClientIP  string    `json:"clientIp"`
	Allowed   bool      `json:"allowed"`
	Count     int64     `json:"count"`
	Limit     int64     `json:"limit"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	RequestID string    `json:"requestId,omitempty"`
	DecidedAt time.Time `json:"decidedAt"`
}
