package session

import (
	"context"
	"time"

	"github.com/agentcore-ai/agentcore/internal/ctxmonitor"
	"github.com/agentcore-ai/agentcore/internal/event"
	"github.com/agentcore-ai/agentcore/internal/provider"
	"github.com/agentcore-ai/agentcore/internal/summarize"
	"github.com/agentcore-ai/agentcore/pkg/types"
)

// CompactionConfig controls message compaction behavior.
type CompactionConfig struct {
	// MinMessagesToKeep is the minimum number of recent messages to keep.
	MinMessagesToKeep int

	// SummaryMaxTokens is the maximum tokens for the summary.
	SummaryMaxTokens int

	// ContextThreshold is the percentage of context usage that triggers compaction.
	ContextThreshold float64
}

// DefaultCompactionConfig returns the default compaction configuration.
var DefaultCompactionConfig = CompactionConfig{
	MinMessagesToKeep: 4,
	SummaryMaxTokens:  2000,
	ContextThreshold:  0.75,
}

// estimateTokens provides a rough estimate of token count (~4 chars/token).
func estimateTokens(text string) int {
	return len(text) / 4
}

// runCompaction replaces the entire message log with a single
// `<summary>...</summary>` user message.
// Rather than an incremental "keep N recent messages, append a diff
// marker" approach, this truncates the log in place: compaction exists
// precisely because providers require the conversation to begin anew
// rather than interleaving summaries mid-log.
func (p *Processor) runCompaction(
	ctx context.Context,
	sessionID string,
	messages []*types.Message,
	monitor *ctxmonitor.Monitor,
	cfg summarize.Config,
) error {
	session, err := p.findSession(ctx, sessionID)
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	session.Time.Compacting = &now
	p.storage.Put(ctx, []string{"session", session.ProjectID, session.ID}, session)
	defer func() {
		session.Time.Compacting = nil
		p.storage.Put(ctx, []string{"session", session.ProjectID, session.ID}, session)
	}()

	parts := make(map[string][]types.Part, len(messages))
	for _, msg := range messages {
		msgParts, err := p.loadParts(ctx, msg.ID)
		if err == nil {
			parts[msg.ID] = msgParts
		}
	}

	summaryProvider, summaryModelID := p.summaryProviderAndModel()

	result, err := summarize.Summarize(ctx, summaryProvider, summaryModelID, sessionID, messages, parts, cfg)
	if err != nil {
		return err
	}

	// Delete every existing message (and its parts) for this session so the
	// log's length becomes exactly 1.
	for _, msg := range messages {
		for _, part := range parts[msg.ID] {
			p.storage.Delete(ctx, []string{"part", msg.ID, part.PartID()})
		}
		p.storage.Delete(ctx, []string{"message", sessionID, msg.ID})
	}

	if err := p.storage.Put(ctx, []string{"message", sessionID, result.Message.ID}, result.Message); err != nil {
		return err
	}
	if err := p.storage.Put(ctx, []string{"part", result.Message.ID, result.Part.PartID()}, result.Part); err != nil {
		return err
	}

	monitor.Reset()

	event.PublishSync(event.Event{
		Type: event.MessageCreated,
		Data: event.MessageCreatedData{Info: result.Message},
	})
	event.PublishSync(event.Event{
		Type: event.MessagePartUpdated,
		Data: event.MessagePartUpdatedData{Part: result.Part},
	})
	event.PublishSync(event.Event{
		Type: event.SessionCompacted,
		Data: event.SessionCompactedData{SessionID: sessionID},
	})

	return nil
}

// summaryProviderAndModel resolves the provider/model used to generate
// compaction summaries, falling back to the processor's defaults.
func (p *Processor) summaryProviderAndModel() (provider.Provider, string) {
	if p.providerRegistry == nil {
		return nil, ""
	}
	model, err := p.providerRegistry.DefaultModel()
	if err != nil {
		return nil, ""
	}
	prov, err := p.providerRegistry.Get(model.ProviderID)
	if err != nil {
		return nil, ""
	}
	return prov, model.ID
}
