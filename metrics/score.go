package metrics

import (
	"sort"
)

// Weights distributes scoring emphasis across the four ranked dimensions.
// Each weight must be >= 0; profiles are intended to sum to 1.0.
type Weights struct {
	Cost         float64 `yaml:"cost" json:"cost"`
	Latency      float64 `yaml:"latency" json:"latency"`
	Quality      float64 `yaml:"quality" json:"quality"`
	Availability float64 `yaml:"availability" json:"availability"`
}

// Sum returns the total of the four weights.
func (w Weights) Sum() float64 {
	return w.Cost + w.Latency + w.Quality + w.Availability
}

// ProviderScore is the normalized, comparable score computed for one
// candidate during a single selection call. Sub-scores sit in [0,1] where 1.0
// is best-observed-among-candidates; TotalScore folds in the health
// multiplier, so it also stays in [0,1].
type ProviderScore struct {
	Provider string `json:"provider"`

	CostScore         float64 `json:"cost_score"`
	LatencyScore      float64 `json:"latency_score"`
	QualityScore      float64 `json:"quality_score"`
	AvailabilityScore float64 `json:"availability_score"`

	HealthMultiplier float64 `json:"health_multiplier"`
	TotalScore       float64 `json:"total_score"`

	// Display metadata for decision reasons; not part of the ranking math.
	AvgLatencyMs int64   `json:"avg_latency_ms"`
	CostPerUnit  float64 `json:"cost_per_unit"`
}

// rawSample is the un-normalized per-candidate input to scoring, read in one
// pass under the provider's lock so the normalization math below runs on a
// point-in-time snapshot without holding anything.
type rawSample struct {
	provider     string
	cost         float64
	latencyMs    float64
	quality      float64
	availability float64
}

// Neutral defaults for providers without a configured profile. A uniform
// default ties the whole candidate set on that dimension, which normalizes
// to 1.0 and leaves the ranking to the measured dimensions.
const (
	defaultQuality     = 0.5
	defaultCostPerUnit = 0.0
)

// ScoreProviders converts rolling metrics plus caller-supplied weights and
// health multipliers into ranked scores, sorted descending by total score.
// Candidates absent from health are assumed healthy (multiplier 1.0).
func (c *Collector) ScoreProviders(candidates []string, weights Weights, health map[string]float64) []ProviderScore {
	if len(candidates) == 0 {
		return nil
	}

	samples := make([]rawSample, 0, len(candidates))
	for _, provider := range candidates {
		samples = append(samples, c.sampleFor(provider))
	}

	costMin, costMax := spread(samples, func(s rawSample) float64 { return s.cost })
	latMin, latMax := spread(samples, func(s rawSample) float64 { return s.latencyMs })
	qualMin, qualMax := spread(samples, func(s rawSample) float64 { return s.quality })
	availMin, availMax := spread(samples, func(s rawSample) float64 { return s.availability })

	scores := make([]ProviderScore, 0, len(samples))
	for _, s := range samples {
		multiplier := 1.0
		if h, ok := health[s.provider]; ok {
			multiplier = clamp01(h)
		}

		score := ProviderScore{
			Provider:          s.provider,
			CostScore:         normalize(s.cost, costMin, costMax, true),
			LatencyScore:      normalize(s.latencyMs, latMin, latMax, true),
			QualityScore:      normalize(s.quality, qualMin, qualMax, false),
			AvailabilityScore: normalize(s.availability, availMin, availMax, false),
			HealthMultiplier:  multiplier,
			AvgLatencyMs:      int64(s.latencyMs),
			CostPerUnit:       s.cost,
		}
		score.TotalScore = multiplier * (weights.Cost*score.CostScore +
			weights.Latency*score.LatencyScore +
			weights.Quality*score.QualityScore +
			weights.Availability*score.AvailabilityScore)
		scores = append(scores, score)
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].TotalScore > scores[j].TotalScore
	})
	return scores
}

// sampleFor reads one candidate's raw values. Unknown providers get the
// optimistic defaults: perfect availability and no recorded latency.
func (c *Collector) sampleFor(provider string) rawSample {
	sample := rawSample{
		provider:     provider,
		cost:         defaultCostPerUnit,
		quality:      defaultQuality,
		availability: 1.0,
	}
	if profile, ok := c.profiles[provider]; ok && profile != nil {
		sample.cost = profile.CostPerUnit
		sample.quality = profile.Quality
	}

	c.mu.RLock()
	e, ok := c.entries[provider]
	c.mu.RUnlock()
	if !ok {
		return sample
	}

	e.mu.Lock()
	sample.latencyMs = float64(e.combinedAvgLatencyMs())
	sample.availability = e.successRate
	e.mu.Unlock()
	return sample
}

func spread(samples []rawSample, value func(rawSample) float64) (min, max float64) {
	min = value(samples[0])
	max = min
	for _, s := range samples[1:] {
		v := value(s)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// normalize maps a raw value into [0,1] against the candidate spread. When
// every candidate ties (or there is only one), the dimension carries no
// signal and everyone scores 1.0.
func normalize(value, min, max float64, lowerIsBetter bool) float64 {
	if max <= min {
		return 1.0
	}
	scaled := (value - min) / (max - min)
	if lowerIsBetter {
		return 1.0 - scaled
	}
	return scaled
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
