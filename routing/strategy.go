package routing

import (
	"math"

	"go.uber.org/zap"

	"github.com/taskmux/taskmux/metrics"
)

// Strategy names a weight profile over the four ranked dimensions.
type Strategy string

const (
	// StrategyFast biases almost all weight onto latency.
	StrategyFast Strategy = "fast"

	// StrategyCheap biases almost all weight onto cost.
	StrategyCheap Strategy = "cheap"

	// StrategyQuality biases almost all weight onto the quality rating.
	StrategyQuality Strategy = "quality"

	// StrategyBalanced spreads weight across all four dimensions (default).
	StrategyBalanced Strategy = "balanced"

	// StrategyCustom uses caller-supplied weights.
	StrategyCustom Strategy = "custom"
)

// weightSumTolerance is how far custom weights may deviate from summing to
// 1.0 before a warning is surfaced. Deviating profiles are still used.
const weightSumTolerance = 0.01

var builtinWeights = map[Strategy]metrics.Weights{
	StrategyFast:     {Cost: 0.05, Latency: 0.80, Quality: 0.05, Availability: 0.10},
	StrategyCheap:    {Cost: 0.80, Latency: 0.05, Quality: 0.05, Availability: 0.10},
	StrategyQuality:  {Cost: 0.05, Latency: 0.05, Quality: 0.80, Availability: 0.10},
	StrategyBalanced: {Cost: 0.25, Latency: 0.25, Quality: 0.25, Availability: 0.25},
}

// resolveWeights maps a strategy name to its weight profile. Configuration
// problems degrade to the balanced profile with a warning: a routing failure
// must never be the cause of a request failing outright.
func resolveWeights(strategy Strategy, custom *metrics.Weights, logger *zap.SugaredLogger) (Strategy, metrics.Weights) {
	if strategy == StrategyCustom {
		if custom == nil {
			logger.Warnw("Custom strategy requires custom weights, using balanced", "strategy", strategy)
			return StrategyBalanced, builtinWeights[StrategyBalanced]
		}
		if math.Abs(custom.Sum()-1.0) > weightSumTolerance {
			logger.Warnw("Custom weights do not sum to 1.0, proceeding anyway",
				"sum", custom.Sum(),
				"cost", custom.Cost,
				"latency", custom.Latency,
				"quality", custom.Quality,
				"availability", custom.Availability)
		}
		return StrategyCustom, *custom
	}

	if weights, ok := builtinWeights[strategy]; ok {
		return strategy, weights
	}

	logger.Warnw("Unknown routing strategy, using balanced", "strategy", strategy)
	return StrategyBalanced, builtinWeights[StrategyBalanced]
}
