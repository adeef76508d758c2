package types

import "time"

// ClassifyReason records why the complexity classifier reached its verdict.
type ClassifyReason string

const (
	ReasonKeywordMatch    ClassifyReason = "keyword_match"
	ReasonLLMVerified     ClassifyReason = "llm_verified"
	ReasonFlagForced      ClassifyReason = "flag_forced"
	ReasonTimeoutFallback ClassifyReason = "timeout_fallback"
	ReasonEmptyHistory    ClassifyReason = "empty_history"
)

// ComplexityAnalysis is the classifier verdict for one request.
// Computed once, never mutated.
type ComplexityAnalysis struct {
	IsComplex  bool           `json:"is_complex"`
	Reason     ClassifyReason `json:"reason"`
	Confidence float64        `json:"confidence"`
	Latency    time.Duration  `json:"latency"`
}

// RoutePath identifies which executor handles a request.
type RoutePath string

const (
	PathFast  RoutePath = "fast"
	PathAgent RoutePath = "agent"
)

// RoutingDecision is the immutable outcome of routing a request. Exactly one
// is made per request; after it is locked in there is no mid-stream re-routing.
type RoutingDecision struct {
	Path      RoutePath          `json:"path"`
	DecidedAt time.Time          `json:"decided_at"`
	Reason    string             `json:"reason"`
	Analysis  ComplexityAnalysis `json:"analysis"`
}
