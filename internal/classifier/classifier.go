package classifier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/af-corp/janus-gateway/internal/config"
	"github.com/af-corp/janus-gateway/internal/types"
)

// Verifier asks a small/fast model the binary "needs_agent" question.
// Implemented by upstream.Client.
type Verifier interface {
	VerifyNeedsAgent(ctx context.Context, model string, messages []types.Message) (bool, error)
}

// Classifier decides simple vs. complex for one request. Never blocks longer
// than the configured verification timeout.
type Classifier struct {
	cfg      func() config.ClassifierConfig
	scanner  *KeywordScanner
	verifier Verifier
	cache    *VerdictCache
}

// New builds a classifier. cache may be nil.
func New(cfg func() config.ClassifierConfig, verifier Verifier, cache *VerdictCache) *Classifier {
	return &Classifier{
		cfg:      cfg,
		scanner:  NewKeywordScanner(cfg().ExtraKeywords),
		verifier: verifier,
		cache:    cache,
	}
}

// ReloadKeywords rebuilds the keyword scanner from current config. Called
// from the loader's OnReload hook.
func (c *Classifier) ReloadKeywords() {
	c.scanner = NewKeywordScanner(c.cfg().ExtraKeywords)
}

// Classify computes the ComplexityAnalysis for a request.
//
// Order: explicit generation flags short-circuit everything; then the latest
// user turn is scanned for complexity keywords; only then is one short-timeout
// verification call issued. Verification failure fails open toward the agent
// path: doing more work beats silently truncating capability.
func (c *Classifier) Classify(ctx context.Context, messages []types.Message, flags *types.GenerationFlags) types.ComplexityAnalysis {
	start := time.Now()

	if flags.Any() {
		return types.ComplexityAnalysis{
			IsComplex:  true,
			Reason:     types.ReasonFlagForced,
			Confidence: 1.0,
			Latency:    time.Since(start),
		}
	}

	latest := types.LatestUserText(messages)
	if latest == "" {
		return types.ComplexityAnalysis{
			IsComplex:  false,
			Reason:     types.ReasonEmptyHistory,
			Confidence: 1.0,
			Latency:    time.Since(start),
		}
	}

	if kw := c.scanner.Scan(latest); kw != nil {
		slog.Debug("classifier keyword match", "keyword", kw.Name, "category", kw.Category)
		return types.ComplexityAnalysis{
			IsComplex:  true,
			Reason:     types.ReasonKeywordMatch,
			Confidence: 0.9,
			Latency:    time.Since(start),
		}
	}

	cfg := c.cfg()
	if cfg.CacheEnabled {
		if verdict, ok := c.cache.Get(ctx, cfg.VerifyModel, latest); ok {
			return types.ComplexityAnalysis{
				IsComplex:  verdict,
				Reason:     types.ReasonLLMVerified,
				Confidence: 0.8,
				Latency:    time.Since(start),
			}
		}
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.VerifyTimeout)
	defer cancel()

	needsAgent, err := c.verifier.VerifyNeedsAgent(verifyCtx, cfg.VerifyModel, messages)
	if err != nil {
		// Fail open toward the agent path. This adds latency and cost on
		// every classifier outage, so it must be visible in the logs.
		slog.Warn("classifier verification failed, failing open to agent path",
			"error", err,
			"timeout", errors.Is(err, context.DeadlineExceeded),
			"verify_model", cfg.VerifyModel,
		)
		return types.ComplexityAnalysis{
			IsComplex:  true,
			Reason:     types.ReasonTimeoutFallback,
			Confidence: 0.5,
			Latency:    time.Since(start),
		}
	}

	if cfg.CacheEnabled {
		c.cache.Set(ctx, cfg.VerifyModel, latest, needsAgent)
	}

	return types.ComplexityAnalysis{
		IsComplex:  needsAgent,
		Reason:     types.ReasonLLMVerified,
		Confidence: 0.8,
		Latency:    time.Since(start),
	}
}
