package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskmux/taskmux"
)

var fastWeights = Weights{Cost: 0.05, Latency: 0.80, Quality: 0.05, Availability: 0.10}
var cheapWeights = Weights{Cost: 0.80, Latency: 0.05, Quality: 0.05, Availability: 0.10}

func recordExecutions(c *Collector, provider string, count int, latencyMs int64) {
	for i := 0; i < count; i++ {
		c.RecordExecution(provider, taskmux.ChannelSDK, latencyMs, true)
	}
}

func TestWeights_Sum(t *testing.T) {
	assert.InDelta(t, 1.0, fastWeights.Sum(), 0.001)
	assert.InDelta(t, 1.2, Weights{Cost: 0.5, Latency: 0.5, Quality: 0.1, Availability: 0.1}.Sum(), 0.001)
}

func TestScoreProviders_EmptyCandidates(t *testing.T) {
	collector, _ := newTestCollector(t, nil)
	assert.Nil(t, collector.ScoreProviders(nil, fastWeights, nil))
}

func TestScoreProviders_SingleCandidateScoresPerfect(t *testing.T) {
	collector, _ := newTestCollector(t, nil)

	// A provider with zero recorded executions: optimistic prior, and with
	// no candidate spread to normalize against every dimension is 1.0.
	scores := collector.ScoreProviders([]string{"claude"}, fastWeights, nil)

	assert.Len(t, scores, 1)
	assert.Equal(t, "claude", scores[0].Provider)
	assert.Equal(t, 1.0, scores[0].CostScore)
	assert.Equal(t, 1.0, scores[0].LatencyScore)
	assert.Equal(t, 1.0, scores[0].QualityScore)
	assert.Equal(t, 1.0, scores[0].AvailabilityScore)
	assert.InDelta(t, fastWeights.Sum(), scores[0].TotalScore, 0.001)
}

func TestScoreProviders_LatencyMonotonicity(t *testing.T) {
	collector, _ := newTestCollector(t, nil)
	recordExecutions(collector, "claude", 12, 50)
	recordExecutions(collector, "gemini", 12, 200)

	scores := collector.ScoreProviders([]string{"gemini", "claude"}, fastWeights, nil)

	assert.Len(t, scores, 2)
	assert.Equal(t, "claude", scores[0].Provider)
	assert.Equal(t, 1.0, scores[0].LatencyScore)
	assert.Equal(t, 0.0, scores[1].LatencyScore)
	assert.Greater(t, scores[0].TotalScore, scores[1].TotalScore)
	assert.Equal(t, int64(50), scores[0].AvgLatencyMs)
}

func TestScoreProviders_CostMonotonicity(t *testing.T) {
	profiles := taskmux.ProviderProfiles{
		"claude": {CostPerUnit: 0.030, Quality: 0.9},
		"gemini": {CostPerUnit: 0.002, Quality: 0.9},
	}
	collector, _ := newTestCollector(t, profiles)
	recordExecutions(collector, "claude", 12, 100)
	recordExecutions(collector, "gemini", 12, 100)

	scores := collector.ScoreProviders([]string{"claude", "gemini"}, cheapWeights, nil)

	assert.Equal(t, "gemini", scores[0].Provider)
	assert.Equal(t, 1.0, scores[0].CostScore)
	assert.Equal(t, 0.0, scores[1].CostScore)
	assert.Equal(t, 0.002, scores[0].CostPerUnit)
}

func TestScoreProviders_QualityMonotonicity(t *testing.T) {
	profiles := taskmux.ProviderProfiles{
		"claude": {CostPerUnit: 0.01, Quality: 0.95},
		"local":  {CostPerUnit: 0.01, Quality: 0.40},
	}
	collector, _ := newTestCollector(t, profiles)
	recordExecutions(collector, "claude", 12, 100)
	recordExecutions(collector, "local", 12, 100)

	qualityWeights := Weights{Cost: 0.05, Latency: 0.05, Quality: 0.80, Availability: 0.10}
	scores := collector.ScoreProviders([]string{"local", "claude"}, qualityWeights, nil)

	assert.Equal(t, "claude", scores[0].Provider)
	assert.Equal(t, 1.0, scores[0].QualityScore)
	assert.Equal(t, 0.0, scores[1].QualityScore)
}

func TestScoreProviders_AvailabilityFromErrors(t *testing.T) {
	collector, _ := newTestCollector(t, nil)
	recordExecutions(collector, "claude", 10, 100)
	for i := 0; i < 5; i++ {
		collector.RecordExecution("gemini", taskmux.ChannelSDK, 100, true)
		collector.RecordExecution("gemini", taskmux.ChannelSDK, 100, false)
	}

	balanced := Weights{Cost: 0.25, Latency: 0.25, Quality: 0.25, Availability: 0.25}
	scores := collector.ScoreProviders([]string{"gemini", "claude"}, balanced, nil)

	assert.Equal(t, "claude", scores[0].Provider)
	assert.Equal(t, 1.0, scores[0].AvailabilityScore)
	assert.Equal(t, 0.0, scores[1].AvailabilityScore)
}

func TestScoreProviders_HealthMultiplier(t *testing.T) {
	collector, _ := newTestCollector(t, nil)
	recordExecutions(collector, "claude", 12, 50)
	recordExecutions(collector, "gemini", 12, 50)

	health := map[string]float64{"claude": 0.5}
	scores := collector.ScoreProviders([]string{"claude", "gemini"}, fastWeights, health)

	// Identical metrics; gemini has no health entry and defaults to 1.0,
	// so the discounted claude ranks below it.
	assert.Equal(t, "gemini", scores[0].Provider)
	assert.Equal(t, 1.0, scores[0].HealthMultiplier)
	assert.Equal(t, 0.5, scores[1].HealthMultiplier)
	assert.InDelta(t, scores[0].TotalScore*0.5, scores[1].TotalScore, 0.001)
}

func TestScoreProviders_OutOfRangeHealthClamped(t *testing.T) {
	collector, _ := newTestCollector(t, nil)

	scores := collector.ScoreProviders([]string{"claude"}, fastWeights, map[string]float64{"claude": 3.0})
	assert.Equal(t, 1.0, scores[0].HealthMultiplier)

	scores = collector.ScoreProviders([]string{"claude"}, fastWeights, map[string]float64{"claude": -1.0})
	assert.Equal(t, 0.0, scores[0].HealthMultiplier)
	assert.Equal(t, 0.0, scores[0].TotalScore)
}

func TestScoreProviders_TiedDimensionCarriesNoSignal(t *testing.T) {
	collector, _ := newTestCollector(t, nil)
	recordExecutions(collector, "claude", 12, 100)
	recordExecutions(collector, "gemini", 12, 100)

	scores := collector.ScoreProviders([]string{"claude", "gemini"}, fastWeights, nil)

	for _, score := range scores {
		assert.Equal(t, 1.0, score.LatencyScore)
		assert.Equal(t, 1.0, score.CostScore)
		assert.Equal(t, 1.0, score.QualityScore)
		assert.Equal(t, 1.0, score.AvailabilityScore)
	}
}

func TestScoreProviders_SortedDescending(t *testing.T) {
	collector, _ := newTestCollector(t, nil)
	recordExecutions(collector, "slow", 12, 400)
	recordExecutions(collector, "medium", 12, 200)
	recordExecutions(collector, "fast", 12, 50)

	scores := collector.ScoreProviders([]string{"slow", "fast", "medium"}, fastWeights, nil)

	assert.Equal(t, "fast", scores[0].Provider)
	assert.Equal(t, "medium", scores[1].Provider)
	assert.Equal(t, "slow", scores[2].Provider)
	for i := 1; i < len(scores); i++ {
		assert.GreaterOrEqual(t, scores[i-1].TotalScore, scores[i].TotalScore)
	}
}

func TestScoreProviders_TotalScoreInRange(t *testing.T) {
	profiles := taskmux.ProviderProfiles{
		"claude": {CostPerUnit: 0.03, Quality: 0.95},
		"gemini": {CostPerUnit: 0.002, Quality: 0.7},
	}
	collector, _ := newTestCollector(t, profiles)
	recordExecutions(collector, "claude", 20, 80)
	recordExecutions(collector, "gemini", 20, 250)

	weights := Weights{Cost: 0.25, Latency: 0.25, Quality: 0.25, Availability: 0.25}
	scores := collector.ScoreProviders([]string{"claude", "gemini"}, weights, map[string]float64{"claude": 0.7})

	for _, score := range scores {
		assert.GreaterOrEqual(t, score.TotalScore, 0.0)
		assert.LessOrEqual(t, score.TotalScore, 1.0)
	}
}
