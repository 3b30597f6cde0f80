package ctxmonitor

// defaultContextLimit is used when no model-specific limit can be resolved.
const defaultContextLimit = 128_000

// Compact once 75% of the window is used, or fewer than 20k tokens remain.
const (
	defaultThresholdRatio = 0.75
	defaultMinRemaining   = 20_000
)

// ModelLimitResolver looks up a model's context window. Implemented by the
// provider registry; kept as a narrow interface here so this package does
// not need to import the provider package.
type ModelLimitResolver interface {
	ContextLimit(providerID, modelID string) (int, bool)
}

// Usage is a point-in-time snapshot of context consumption.
type Usage struct {
	InputTokens    int64
	OutputTokens   int64
	Limit          int
	UsedRatio      float64
	RemainingTokens int
	ShouldCompact  bool
}

// Monitor tracks cumulative token usage for a single session and decides
// when context compaction should run.
type Monitor struct {
	providerID string
	modelID    string
	resolver   ModelLimitResolver

	thresholdRatio float64
	minRemaining   int

	lastInputTokens  int64
	lastOutputTokens int64
}

// NewMonitor creates a monitor for a session bound to a provider/model.
// resolver may be nil, in which case ContextLimit always falls back to
// defaultContextLimit.
func NewMonitor(providerID, modelID string, resolver ModelLimitResolver) *Monitor {
	return &Monitor{
		providerID:     providerID,
		modelID:        modelID,
		resolver:       resolver,
		thresholdRatio: defaultThresholdRatio,
		minRemaining:   defaultMinRemaining,
	}
}

// UpdateFromResponse replaces the stored token counts with the provider's
// latest cumulative report. These are never summed locally; the
// provider's count *is* the cumulative context size. A response that omits
// its token counts (input == 0 && output == 0) leaves the prior values
// intact.
func (m *Monitor) UpdateFromResponse(input, output int64) {
	if input == 0 && output == 0 {
		return
	}
	m.lastInputTokens = input
	m.lastOutputTokens = output
}

// Reset zeroes the counters. Called after a successful compaction.
func (m *Monitor) Reset() {
	m.lastInputTokens = 0
	m.lastOutputTokens = 0
}

// ContextLimit resolves the model's context window: by model name via the
// resolver, falling back to a provider-agnostic default. Always positive.
func (m *Monitor) ContextLimit() int {
	if m.resolver != nil {
		if limit, ok := m.resolver.ContextLimit(m.providerID, m.modelID); ok && limit > 0 {
			return limit
		}
	}
	return defaultContextLimit
}

// ShouldCompact reports whether the session should be compacted before the
// next provider call: used/limit >= 0.75, or remaining < 20000 tokens.
func (m *Monitor) ShouldCompact() bool {
	limit := m.ContextLimit()
	used := m.lastInputTokens + m.lastOutputTokens
	ratio := float64(used) / float64(limit)
	remaining := limit - int(used)
	return ratio >= m.thresholdRatio || remaining < m.minRemaining
}

// Snapshot returns the current usage statistics.
func (m *Monitor) Snapshot() Usage {
	limit := m.ContextLimit()
	used := m.lastInputTokens + m.lastOutputTokens
	remaining := limit - int(used)
	if remaining < 0 {
		remaining = 0
	}
	return Usage{
		InputTokens:     m.lastInputTokens,
		OutputTokens:    m.lastOutputTokens,
		Limit:           limit,
		UsedRatio:       float64(used) / float64(limit),
		RemainingTokens: remaining,
		ShouldCompact:   m.ShouldCompact(),
	}
}
