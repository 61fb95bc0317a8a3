package routing

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskmux/taskmux/metrics"
	"github.com/taskmux/taskmux/monitoring"
)

const (
	// decisionHistorySize caps the bounded decision ring; exceeding the cap
	// evicts the oldest decision.
	decisionHistorySize = 100

	// minHealthForFallback is the floor below which a candidate is treated
	// as effectively dead on the cold-start fallback path.
	minHealthForFallback = 0.1

	// defaultMinRequestsForScoring gates metrics-based ranking: below this
	// much recorded history per candidate, metrics are not yet trustworthy.
	defaultMinRequestsForScoring = 10
)

// RouterConfig configures the routing strategy manager.
type RouterConfig struct {
	// Primary routing strategy name.
	Strategy Strategy `yaml:"strategy"`

	// Weights for the custom strategy. Required when Strategy is "custom".
	CustomWeights *metrics.Weights `yaml:"custom_weights,omitempty"`

	// Requests a candidate must have before metrics-based ranking is trusted.
	MinRequestsForScoring int64 `yaml:"min_requests_for_scoring"`

	// Log a structured summary of every decision.
	EnableDecisionLog bool `yaml:"decision_log"`
}

// DefaultRouterConfig returns the default routing configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		Strategy:              StrategyBalanced,
		MinRequestsForScoring: defaultMinRequestsForScoring,
		EnableDecisionLog:     true,
	}
}

// RoutingDecision is the auditable record of one routing choice. Immutable
// once created.
type RoutingDecision struct {
	ID               string                  `json:"id"`
	SelectedProvider string                  `json:"selected_provider"`
	Strategy         Strategy                `json:"strategy"`
	Scores           []metrics.ProviderScore `json:"scores,omitempty"`
	Reason           string                  `json:"reason"`
	Timestamp        time.Time               `json:"timestamp"`
}

// ProviderStats summarizes how one provider has fared in past decisions.
type ProviderStats struct {
	Selections    int64   `json:"selections"`
	AvgTotalScore float64 `json:"avg_total_score"`
}

// Router turns "which providers are candidates right now" into "which one do
// we use, and why". It owns the active weight profile and a bounded,
// exportable decision history. Safe for concurrent use.
type Router struct {
	collector *metrics.Collector
	monitor   *monitoring.Manager
	logger    *zap.SugaredLogger
	clock     clock.Clock

	config *RouterConfig

	mu          sync.RWMutex
	strategy    Strategy
	weights     metrics.Weights
	history     []*RoutingDecision
	subscribers []func(*RoutingDecision)
	selections  map[string]int64
	scoreSums   map[string]float64
	scoreCounts map[string]int64
}

// NewRouter creates a routing strategy manager on top of the given metrics
// collector. monitor may be nil when no observability pipeline is attached.
func NewRouter(config *RouterConfig, collector *metrics.Collector, monitor *monitoring.Manager, logger *zap.SugaredLogger) *Router {
	return newRouterWithClock(config, collector, monitor, logger, clock.New())
}

func newRouterWithClock(config *RouterConfig, collector *metrics.Collector, monitor *monitoring.Manager, logger *zap.SugaredLogger, clk clock.Clock) *Router {
	if config == nil {
		config = DefaultRouterConfig()
	}
	if config.MinRequestsForScoring <= 0 {
		config.MinRequestsForScoring = defaultMinRequestsForScoring
	}

	strategy, weights := resolveWeights(config.Strategy, config.CustomWeights, logger)

	return &Router{
		collector:   collector,
		monitor:     monitor,
		logger:      logger,
		clock:       clk,
		config:      config,
		strategy:    strategy,
		weights:     weights,
		selections:  make(map[string]int64),
		scoreSums:   make(map[string]float64),
		scoreCounts: make(map[string]int64),
	}
}

// SetStrategy switches the active weight profile. Unknown names and malformed
// custom weights degrade to balanced with a warning; this never fails.
func (r *Router) SetStrategy(strategy Strategy, custom *metrics.Weights) {
	resolved, weights := resolveWeights(strategy, custom, r.logger)

	r.mu.Lock()
	previous := r.strategy
	r.strategy = resolved
	r.weights = weights
	r.mu.Unlock()

	if previous != resolved {
		r.logger.Infow("Routing strategy changed", "from", previous, "to", resolved)
	}
}

// Strategy returns the active strategy name.
func (r *Router) Strategy() Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategy
}

// Weights returns the active weight profile.
func (r *Router) Weights() metrics.Weights {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.weights
}

// Subscribe registers an observer called with every recorded decision. The
// callback runs on the selecting goroutine and must not block.
func (r *Router) Subscribe(fn func(*RoutingDecision)) {
	r.mu.Lock()
	r.subscribers = append(r.subscribers, fn)
	r.mu.Unlock()
}

// SelectProvider picks the best candidate for the active strategy.
//
// candidates is the caller's priority-ordered list of currently-eligible
// provider names; health maps providers to the circuit breaker's [0,1]
// multiplier (absent means healthy). When no candidate has enough recorded
// history for metrics-based ranking and fallbackToPriority is true, the first
// candidate in caller order passing the health floor is chosen instead.
//
// A nil result means no healthy candidate, never an internal failure; the
// dispatcher must surface that upstream.
func (r *Router) SelectProvider(candidates []string, health map[string]float64, fallbackToPriority bool) *RoutingDecision {
	if len(candidates) == 0 {
		return nil
	}

	r.mu.RLock()
	strategy := r.strategy
	weights := r.weights
	minRequests := r.config.MinRequestsForScoring
	r.mu.RUnlock()

	if !r.hasEnoughData(candidates, minRequests) {
		if !fallbackToPriority {
			return nil
		}
		return r.selectByPriority(candidates, health, strategy, minRequests)
	}

	scores := r.collector.ScoreProviders(candidates, weights, health)
	if len(scores) == 0 {
		return nil
	}

	top := scores[0]
	decision := &RoutingDecision{
		ID:               uuid.NewString(),
		SelectedProvider: top.Provider,
		Strategy:         strategy,
		Scores:           scores,
		Reason:           r.reasonFor(strategy, weights, top),
		Timestamp:        r.clock.Now(),
	}
	r.commit(decision, len(candidates))
	return decision
}

// hasEnoughData reports whether any candidate has crossed the scoring gate.
func (r *Router) hasEnoughData(candidates []string, minRequests int64) bool {
	for _, provider := range candidates {
		if r.collector.RequestCount(provider) >= minRequests {
			return true
		}
	}
	return false
}

// selectByPriority is the cold-start path: caller order encodes priority, so
// take the first candidate that is not effectively dead.
func (r *Router) selectByPriority(candidates []string, health map[string]float64, strategy Strategy, minRequests int64) *RoutingDecision {
	for _, provider := range candidates {
		multiplier := 1.0
		if h, ok := health[provider]; ok {
			multiplier = h
		}
		if multiplier < minHealthForFallback {
			continue
		}

		decision := &RoutingDecision{
			ID:               uuid.NewString(),
			SelectedProvider: provider,
			Strategy:         strategy,
			Reason: fmt.Sprintf(
				"insufficient metrics data (no candidate with %d+ recorded requests); selected %s by priority order after health check",
				minRequests, provider),
			Timestamp: r.clock.Now(),
		}
		r.commit(decision, len(candidates))
		return decision
	}
	return nil
}

// reasonFor generates the human-readable rationale for picking top. The text
// cites whichever dimension the active strategy emphasizes.
func (r *Router) reasonFor(strategy Strategy, weights metrics.Weights, top metrics.ProviderScore) string {
	var reason string
	switch strategy {
	case StrategyFast:
		reason = fmt.Sprintf("lowest expected latency (avg %dms)", top.AvgLatencyMs)
	case StrategyCheap:
		reason = fmt.Sprintf("lowest cost per unit ($%.4f/1K units)", top.CostPerUnit)
	case StrategyQuality:
		reason = fmt.Sprintf("highest quality score (%.0f%%)", top.QualityScore*100)
	case StrategyBalanced:
		reason = fmt.Sprintf("best overall score (%.3f)", top.TotalScore)
	default:
		dimension, contribution := dominantDimension(weights, top)
		reason = fmt.Sprintf("custom weights favored %s (weighted contribution %.3f)", dimension, contribution)
	}

	if top.HealthMultiplier < 1.0 {
		reason += fmt.Sprintf("; score health-adjusted by multiplier %.2f", top.HealthMultiplier)
	}
	return reason
}

// dominantDimension names the weighted dimension contributing the largest
// share of the winning total score.
func dominantDimension(weights metrics.Weights, score metrics.ProviderScore) (string, float64) {
	dimension := "cost"
	contribution := weights.Cost * score.CostScore

	if c := weights.Latency * score.LatencyScore; c > contribution {
		dimension, contribution = "latency", c
	}
	if c := weights.Quality * score.QualityScore; c > contribution {
		dimension, contribution = "quality", c
	}
	if c := weights.Availability * score.AvailabilityScore; c > contribution {
		dimension, contribution = "availability", c
	}
	return dimension, contribution
}

// commit appends the decision to the bounded history, updates selection
// stats, and notifies observers.
func (r *Router) commit(decision *RoutingDecision, candidates int) {
	r.mu.Lock()
	if len(r.history) >= decisionHistorySize {
		r.history = r.history[1:]
	}
	r.history = append(r.history, decision)

	r.selections[decision.SelectedProvider]++
	for _, score := range decision.Scores {
		r.scoreSums[score.Provider] += score.TotalScore
		r.scoreCounts[score.Provider]++
	}
	subscribers := make([]func(*RoutingDecision), len(r.subscribers))
	copy(subscribers, r.subscribers)
	r.mu.Unlock()

	for _, fn := range subscribers {
		fn(decision)
	}

	if r.monitor != nil {
		dm := &monitoring.DecisionMetrics{
			Provider:   decision.SelectedProvider,
			Strategy:   string(decision.Strategy),
			ColdStart:  len(decision.Scores) == 0,
			Candidates: candidates,
		}
		if len(decision.Scores) > 0 {
			top := decision.Scores[0]
			dm.CostScore = top.CostScore
			dm.LatencyScore = top.LatencyScore
			dm.QualityScore = top.QualityScore
			dm.AvailabilityScore = top.AvailabilityScore
			dm.TotalScore = top.TotalScore
			dm.HealthMultiplier = top.HealthMultiplier
		}
		if err := r.monitor.RecordDecision(dm); err != nil {
			r.logger.Warnw("Failed to record decision metrics", "error", err)
		}
	}

	if r.config.EnableDecisionLog {
		fields := []interface{}{
			"provider", decision.SelectedProvider,
			"strategy", decision.Strategy,
			"reason", decision.Reason,
		}
		if len(decision.Scores) > 0 {
			top := decision.Scores[0]
			fields = append(fields,
				"cost_score", top.CostScore,
				"latency_score", top.LatencyScore,
				"quality_score", top.QualityScore,
				"availability_score", top.AvailabilityScore,
				"total_score", top.TotalScore,
			)
		}
		r.logger.Infow("Routing decision", fields...)
	}
}

// DecisionHistory returns the most recent limit decisions, newest last.
// limit <= 0 returns everything retained.
func (r *Router) DecisionHistory(limit int) []*RoutingDecision {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start := 0
	if limit > 0 && len(r.history) > limit {
		start = len(r.history) - limit
	}
	out := make([]*RoutingDecision, len(r.history)-start)
	copy(out, r.history[start:])
	return out
}

// Stats returns per-provider selection counts and the average total score
// each provider achieved whenever it appeared in a score list. Providers
// selected only through the cold-start path report a zero average.
func (r *Router) Stats() map[string]ProviderStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]ProviderStats, len(r.selections))
	for provider, count := range r.selections {
		stats[provider] = ProviderStats{Selections: count}
	}
	for provider, sum := range r.scoreSums {
		s := stats[provider]
		s.AvgTotalScore = sum / float64(r.scoreCounts[provider])
		stats[provider] = s
	}
	return stats
}

// ExportHistory returns the retained decision history as JSON. The encoding
// is a full defensive copy; callers cannot mutate router state through it.
func (r *Router) ExportHistory() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return json.Marshal(r.history)
}

// ClearHistory discards the retained decision history.
func (r *Router) ClearHistory() {
	r.mu.Lock()
	r.history = nil
	r.mu.Unlock()
}
