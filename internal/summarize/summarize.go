// Package summarize implements conversation compaction: replacing the
// entire message log with a single summary message once the context
// monitor signals that a session is approaching its token limit.
package summarize

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentcore-ai/agentcore/internal/provider"
	"github.com/agentcore-ai/agentcore/pkg/types"
)

// DefaultSummaryPrompt is appended to the conversation when asking the
// model to produce a continuation summary.
const DefaultSummaryPrompt = `You have been working on the task described above but have not yet completed it. Write a continuation summary that will allow you (or another instance of yourself) to resume work efficiently in a future context window where the conversation history will be replaced with this summary. Your summary should be structured, concise, and actionable. Include:

1. Task Overview
   - The user's core request and success criteria
   - Any clarifications or constraints they specified

2. Current State
   - What has been completed so far
   - Files created, modified, or analyzed (with paths if relevant)
   - Key outputs or artifacts produced

3. Important Discoveries
   - Technical constraints or requirements uncovered
   - Decisions made and their rationale
   - Errors encountered and how they were resolved
   - What approaches were tried that didn't work (and why)

4. Next Steps
   - Specific actions needed to complete the task
   - Any blockers or open questions to resolve
   - Priority order if multiple steps remain

5. Context to Preserve
   - User preferences or style requirements
   - Domain-specific details that aren't obvious
   - Any promises made to the user

Be concise but complete, erring on the side of including information that would prevent duplicate work or repeated mistakes. Write in a way that enables immediate resumption of the task.

Wrap your summary in <summary></summary> tags.`

// Config controls how a compaction is generated.
type Config struct {
	// PreserveInstructions comes from "/compact keep API changes" style
	// invocations and is prepended as an "IMPORTANT: preserve ..." line.
	PreserveInstructions string
	// UseLLM selects the default (LLM-generated) path; false or a nil
	// provider falls back to the heuristic summary.
	UseLLM bool
	// SummaryPrompt overrides DefaultSummaryPrompt when non-empty.
	SummaryPrompt string
}

// AutoConfig returns the configuration used for threshold-triggered
// (non-explicit) compaction.
func AutoConfig() Config {
	return Config{UseLLM: true}
}

// Result is the outcome of a compaction: the single message and its one
// text part that should replace the entire session log.
type Result struct {
	Message *types.Message
	Part    *types.TextPart
}

// Summarize replaces messages/parts with a single `<summary>...</summary>`
// user message. prov may be nil, in which case (or when cfg.UseLLM is
// false) the heuristic summary is used instead of an LLM call.
func Summarize(ctx context.Context, prov provider.Provider, modelID, sessionID string, messages []*types.Message, parts map[string][]types.Part, cfg Config) (*Result, error) {
	var body string
	if cfg.UseLLM && prov != nil {
		summary, err := llmSummary(ctx, prov, modelID, sessionID, messages, parts, cfg)
		if err != nil {
			// Provider failure during compaction is not fatal to the
			// session — fall back to the heuristic path rather than
			// leaving the log uncompacted and over budget.
			body = heuristicSummary(messages, parts)
		} else {
			body = summary
		}
	} else {
		body = heuristicSummary(messages, parts)
	}

	if !strings.Contains(body, "<summary>") {
		body = fmt.Sprintf("<summary>\n%s\n</summary>", body)
	}

	now := time.Now().UnixMilli()
	msgID := ulid.Make().String()
	partID := ulid.Make().String()

	msg := &types.Message{
		ID:        msgID,
		SessionID: sessionID,
		Role:      "user",
		Time:      types.MessageTime{Created: now},
	}
	part := &types.TextPart{
		ID:        partID,
		SessionID: sessionID,
		MessageID: msgID,
		Type:      "text",
		Text:      body,
		Time:      types.PartTime{Start: ptr(now), End: ptr(now)},
	}

	return &Result{Message: msg, Part: part}, nil
}

func ptr[T any](v T) *T { return &v }

func llmSummary(ctx context.Context, prov provider.Provider, modelID, sessionID string, messages []*types.Message, parts map[string][]types.Part, cfg Config) (string, error) {
	prompt := cfg.SummaryPrompt
	if prompt == "" {
		prompt = DefaultSummaryPrompt
	}
	if cfg.PreserveInstructions != "" {
		prompt = fmt.Sprintf("IMPORTANT: preserve %s\n\n%s", cfg.PreserveInstructions, prompt)
	}

	summaryUserMsg := &types.Message{SessionID: sessionID, Role: "user"}
	summaryParts := map[string][]types.Part{
		summaryUserMsg.ID: {&types.TextPart{Type: "text", Text: prompt}},
	}

	allMessages := append(append([]*types.Message{}, messages...), summaryUserMsg)
	mergedParts := make(map[string][]types.Part, len(parts)+1)
	for k, v := range parts {
		mergedParts[k] = v
	}
	for k, v := range summaryParts {
		mergedParts[k] = v
	}

	einoMessages := provider.ConvertToEinoMessages(allMessages, mergedParts)
	stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
		Model:    modelID,
		Messages: einoMessages,
	})
	if err != nil {
		return "", fmt.Errorf("compaction completion: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if err != nil {
			break
		}
		sb.WriteString(chunk.Content)
	}
	return sb.String(), nil
}

// trackedExtensions are the file extensions the heuristic summary scans
// message text for when no LLM path is available.
var trackedExtensions = []string{
	".go", ".rs", ".py", ".ts", ".tsx", ".js", ".jsx", ".java", ".rb",
	".c", ".cpp", ".h", ".hpp", ".md", ".json", ".yaml", ".yml", ".toml",
}

var actionVerbs = []string{"created", "modified", "fixed"}

// heuristicSummary enumerates files mentioned (by extension match), shell
// commands seen, one decision per conversation segment (its first user
// message), and actions inferred from a fixed verb list. Used when no LLM
// is available to generate a structured summary.
func heuristicSummary(messages []*types.Message, parts map[string][]types.Part) string {
	files := map[string]bool{}
	commands := map[string]bool{}
	var decisions []string
	var actions []string

	segmentStart := true
	for _, msg := range messages {
		msgParts := parts[msg.ID]
		var text strings.Builder
		for _, p := range msgParts {
			switch tp := p.(type) {
			case *types.TextPart:
				text.WriteString(tp.Text)
				text.WriteString("\n")
			case *types.ToolPart:
				if strings.EqualFold(tp.Tool, "bash") {
					if cmd, ok := tp.State.Input["command"].(string); ok {
						commands[cmd] = true
					}
				}
			}
		}
		content := text.String()

		if msg.Role == "user" {
			if segmentStart && strings.TrimSpace(content) != "" {
				decisions = append(decisions, firstLine(content))
			}
			segmentStart = false
		} else {
			segmentStart = true
		}

		for _, ext := range trackedExtensions {
			for _, word := range strings.Fields(content) {
				trimmed := strings.Trim(word, "`'\",.()[]{}:;")
				if strings.HasSuffix(trimmed, ext) {
					files[trimmed] = true
				}
			}
		}

		lower := strings.ToLower(content)
		for _, verb := range actionVerbs {
			if strings.Contains(lower, verb) {
				actions = append(actions, fmt.Sprintf("%s: %s", verb, firstLine(content)))
				break
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("Heuristic session summary (no LLM available).\n\n")

	sb.WriteString("Files touched:\n")
	writeSortedSet(&sb, files, "(none detected)")

	sb.WriteString("\nCommands run:\n")
	writeSortedSet(&sb, commands, "(none detected)")

	sb.WriteString("\nDecisions:\n")
	if len(decisions) == 0 {
		sb.WriteString("- (none detected)\n")
	}
	for _, d := range decisions {
		sb.WriteString("- " + d + "\n")
	}

	sb.WriteString("\nActions:\n")
	if len(actions) == 0 {
		sb.WriteString("- (none detected)\n")
	}
	for _, a := range actions {
		sb.WriteString("- " + a + "\n")
	}

	return sb.String()
}

func writeSortedSet(sb *strings.Builder, set map[string]bool, emptyMsg string) {
	if len(set) == 0 {
		sb.WriteString("- " + emptyMsg + "\n")
		return
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString("- " + k + "\n")
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
