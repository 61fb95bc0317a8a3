package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/taskmux/taskmux"
)

// latencyWindowSize caps each channel's latency sample window. Older samples
// are evicted first, so a brief latency spike ages out within 100 calls.
const latencyWindowSize = 100

// ChannelMetrics is a point-in-time copy of one channel's counters.
type ChannelMetrics struct {
	Executions   int64 `json:"executions"`
	Errors       int64 `json:"errors"`
	Fallbacks    int64 `json:"fallbacks"`
	AvgLatencyMs int64 `json:"avg_latency_ms"`
	SampleCount  int   `json:"sample_count"`
}

// ProviderMetrics is a point-in-time copy of everything recorded for one
// provider. Returned by value; mutating it has no effect on the collector.
type ProviderMetrics struct {
	Provider string `json:"provider"`

	SDK      ChannelMetrics `json:"sdk"`
	CLI      ChannelMetrics `json:"cli"`
	Protocol ChannelMetrics `json:"protocol"`

	SuccessRate  float64 `json:"success_rate"`
	FallbackRate float64 `json:"fallback_rate"`

	CircuitState  taskmux.CircuitState `json:"circuit_state"`
	ExecutionMode taskmux.Channel      `json:"execution_mode"`

	LastUpdated time.Time `json:"last_updated"`
}

// ConnectionStats aggregates protocol-channel connection activity across the
// whole process, independent of any single provider.
type ConnectionStats struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
	Failed int64 `json:"failed"`
}

// Summary is a cross-provider rollup for diagnostics.
type Summary struct {
	TotalSDKExecutions int64           `json:"total_sdk_executions"`
	TotalCLIExecutions int64           `json:"total_cli_executions"`
	TotalToolCalls     int64           `json:"total_tool_calls"`
	FallbackRate       float64         `json:"fallback_rate"`
	AvgLatencyMs       int64           `json:"avg_latency_ms"`
	OpenCircuits       []string        `json:"open_circuits,omitempty"`
	Connections        ConnectionStats `json:"connections"`
}

// channelStats holds one channel's counters and its bounded latency window.
type channelStats struct {
	executions int64
	errors     int64
	fallbacks  int64

	// Sliding window of the most recent latencies in milliseconds.
	latencies    []int64
	avgLatencyMs int64
}

func (s *channelStats) push(latencyMs int64) {
	if len(s.latencies) >= latencyWindowSize {
		s.latencies = s.latencies[1:]
	}
	s.latencies = append(s.latencies, latencyMs)

	var sum int64
	for _, l := range s.latencies {
		sum += l
	}
	s.avgLatencyMs = int64(math.Round(float64(sum) / float64(len(s.latencies))))
}

func (s *channelStats) snapshot() ChannelMetrics {
	return ChannelMetrics{
		Executions:   s.executions,
		Errors:       s.errors,
		Fallbacks:    s.fallbacks,
		AvgLatencyMs: s.avgLatencyMs,
		SampleCount:  len(s.latencies),
	}
}

// providerEntry is the live record for one provider. Each entry carries its
// own mutex so recording for provider A never blocks recording for provider B.
type providerEntry struct {
	mu sync.Mutex

	sdk      channelStats
	cli      channelStats
	protocol channelStats

	successRate  float64
	fallbackRate float64

	circuitState  taskmux.CircuitState
	executionMode taskmux.Channel

	lastUpdated time.Time
}

func (e *providerEntry) channel(ch taskmux.Channel) *channelStats {
	switch ch {
	case taskmux.ChannelCLI:
		return &e.cli
	case taskmux.ChannelProtocol:
		return &e.protocol
	default:
		return &e.sdk
	}
}

// recomputeRates must be called with e.mu held.
func (e *providerEntry) recomputeRates() {
	executions := e.sdk.executions + e.cli.executions + e.protocol.executions
	errors := e.sdk.errors + e.cli.errors + e.protocol.errors
	fallbacks := e.sdk.fallbacks + e.cli.fallbacks

	if executions == 0 {
		// Optimistic prior: an unseen provider is assumed healthy.
		e.successRate = 1.0
		e.fallbackRate = 0
		return
	}
	e.successRate = math.Max(0, float64(executions-errors)/float64(executions))
	e.fallbackRate = float64(fallbacks) / float64(executions)
}

// combinedAvgLatencyMs averages every sample across the three channel
// windows. Must be called with e.mu held.
func (e *providerEntry) combinedAvgLatencyMs() int64 {
	var sum int64
	var count int
	for _, s := range []*channelStats{&e.sdk, &e.cli, &e.protocol} {
		for _, l := range s.latencies {
			sum += l
		}
		count += len(s.latencies)
	}
	if count == 0 {
		return 0
	}
	return int64(math.Round(float64(sum) / float64(count)))
}

// Collector is the single source of truth for how each provider has behaved
// recently, and the only place raw behavior is converted into comparable
// scores. Safe for concurrent use from independent call sites.
type Collector struct {
	mu       sync.RWMutex
	entries  map[string]*providerEntry
	profiles taskmux.ProviderProfiles

	enabled atomic.Bool

	connTotal  atomic.Int64
	connActive atomic.Int64
	connFailed atomic.Int64

	// Clock interface for time-related operations. Must use this to avoid
	// flakiness in tests.
	clock  clock.Clock
	logger *zap.SugaredLogger
}

// NewCollector creates a collector with metrics collection enabled.
// profiles supplies the configured cost and quality attributes used for
// scoring; providers without a profile score with neutral defaults.
func NewCollector(profiles taskmux.ProviderProfiles, logger *zap.SugaredLogger) *Collector {
	return newCollectorWithClock(profiles, logger, clock.New())
}

func newCollectorWithClock(profiles taskmux.ProviderProfiles, logger *zap.SugaredLogger, clk clock.Clock) *Collector {
	if profiles == nil {
		profiles = taskmux.ProviderProfiles{}
	}
	c := &Collector{
		entries:  make(map[string]*providerEntry),
		profiles: profiles,
		clock:    clk,
		logger:   logger,
	}
	c.enabled.Store(true)
	return c
}

// SetEnabled toggles metrics collection. While disabled, record calls are
// cheap no-ops and never allocate a provider entry.
func (c *Collector) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

// entry returns the live record for provider, creating it lazily.
func (c *Collector) entry(provider string) *providerEntry {
	c.mu.RLock()
	e, ok := c.entries[provider]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.entries[provider]; ok {
		return e
	}
	e = &providerEntry{
		successRate:   1.0,
		circuitState:  taskmux.CircuitClosed,
		executionMode: taskmux.ChannelSDK,
		lastUpdated:   c.clock.Now(),
	}
	c.entries[provider] = e
	return e
}

// RecordExecution records one completed SDK or CLI attempt against provider.
// A negative latency is tolerated: the counters still move, the sample is
// dropped. Recording must never be the reason a request fails.
func (c *Collector) RecordExecution(provider string, channel taskmux.Channel, latencyMs int64, success bool) {
	if !c.enabled.Load() {
		return
	}

	e := c.entry(provider)
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := e.channel(channel)
	stats.executions++
	if !success {
		stats.errors++
	}
	if latencyMs >= 0 {
		stats.push(latencyMs)
	}
	e.recomputeRates()
	e.lastUpdated = c.clock.Now()
}

// RecordFallback records that an SDK attempt against provider was abandoned
// in favor of the CLI path. The reason is carried for logging only; it is not
// part of the statistical model.
func (c *Collector) RecordFallback(provider string, reason string) {
	if !c.enabled.Load() {
		return
	}

	e := c.entry(provider)
	e.mu.Lock()
	e.sdk.fallbacks++
	e.recomputeRates()
	e.lastUpdated = c.clock.Now()
	e.mu.Unlock()

	if c.logger != nil {
		c.logger.Debugw("Provider fell back to CLI", "provider", provider, "reason", reason)
	}
}

// RecordToolCall records one protocol-channel tool call against provider.
func (c *Collector) RecordToolCall(provider string, latencyMs int64, success bool) {
	c.RecordExecution(provider, taskmux.ChannelProtocol, latencyMs, success)
}

// RecordConnectionOpen records a new protocol-channel connection.
func (c *Collector) RecordConnectionOpen() {
	if !c.enabled.Load() {
		return
	}
	c.connTotal.Add(1)
	c.connActive.Add(1)
}

// RecordConnectionClose records a connection teardown. failed marks
// connections that terminated abnormally.
func (c *Collector) RecordConnectionClose(failed bool) {
	if !c.enabled.Load() {
		return
	}
	if c.connActive.Add(-1) < 0 {
		c.connActive.Store(0)
	}
	if failed {
		c.connFailed.Add(1)
	}
}

// SetCircuitBreakerState stores the breaker's latest classification for
// provider. The collector never derives this value itself.
func (c *Collector) SetCircuitBreakerState(provider string, state taskmux.CircuitState) {
	e := c.entry(provider)
	e.mu.Lock()
	e.circuitState = state
	e.lastUpdated = c.clock.Now()
	e.mu.Unlock()
}

// SetExecutionMode stores the channel currently used to reach provider.
func (c *Collector) SetExecutionMode(provider string, mode taskmux.Channel) {
	e := c.entry(provider)
	e.mu.Lock()
	e.executionMode = mode
	e.lastUpdated = c.clock.Now()
	e.mu.Unlock()
}

// RequestCount returns the total recorded work for provider across all three
// channels. Zero for providers never seen.
func (c *Collector) RequestCount(provider string) int64 {
	c.mu.RLock()
	e, ok := c.entries[provider]
	c.mu.RUnlock()
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sdk.executions + e.cli.executions + e.protocol.executions
}

// SnapshotFor returns a copy of everything recorded for provider.
func (c *Collector) SnapshotFor(provider string) (ProviderMetrics, bool) {
	c.mu.RLock()
	e, ok := c.entries[provider]
	c.mu.RUnlock()
	if !ok {
		return ProviderMetrics{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return ProviderMetrics{
		Provider:      provider,
		SDK:           e.sdk.snapshot(),
		CLI:           e.cli.snapshot(),
		Protocol:      e.protocol.snapshot(),
		SuccessRate:   e.successRate,
		FallbackRate:  e.fallbackRate,
		CircuitState:  e.circuitState,
		ExecutionMode: e.executionMode,
		LastUpdated:   e.lastUpdated,
	}, true
}

// Summary returns a cross-provider rollup: execution totals, the overall
// fallback rate, the mean of each provider's average latency, and the
// providers currently reporting an open circuit.
func (c *Collector) Summary() Summary {
	c.mu.RLock()
	entries := make(map[string]*providerEntry, len(c.entries))
	for name, e := range c.entries {
		entries[name] = e
	}
	c.mu.RUnlock()

	var summary Summary
	var totalExecutions, totalFallbacks int64
	var latencySum int64
	var latencyCount int

	for name, e := range entries {
		e.mu.Lock()
		summary.TotalSDKExecutions += e.sdk.executions
		summary.TotalCLIExecutions += e.cli.executions
		summary.TotalToolCalls += e.protocol.executions
		totalExecutions += e.sdk.executions + e.cli.executions + e.protocol.executions
		totalFallbacks += e.sdk.fallbacks + e.cli.fallbacks
		if avg := e.combinedAvgLatencyMs(); avg > 0 {
			latencySum += avg
			latencyCount++
		}
		if e.circuitState == taskmux.CircuitOpen {
			summary.OpenCircuits = append(summary.OpenCircuits, name)
		}
		e.mu.Unlock()
	}

	if totalExecutions > 0 {
		summary.FallbackRate = float64(totalFallbacks) / float64(totalExecutions)
	}
	if latencyCount > 0 {
		summary.AvgLatencyMs = int64(math.Round(float64(latencySum) / float64(latencyCount)))
	}
	summary.Connections = ConnectionStats{
		Total:  c.connTotal.Load(),
		Active: c.connActive.Load(),
		Failed: c.connFailed.Load(),
	}
	return summary
}

// Reset clears all counters, samples, and the connection aggregate.
// Intended for test isolation.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]*providerEntry)
	c.mu.Unlock()

	c.connTotal.Store(0)
	c.connActive.Store(0)
	c.connFailed.Store(0)
}
