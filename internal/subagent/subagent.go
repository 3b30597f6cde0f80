// Package subagent spawns child sessions for agent-initiated subtasks,
// with explicit context-mode support: Fork (default) snapshots the
// parent's message history into an independent child session, while
// Inherit runs the subtask directly against the parent's own session log
// instead of copying it.
package subagent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentcore-ai/agentcore/internal/agent"
	"github.com/agentcore-ai/agentcore/internal/event"
	"github.com/agentcore-ai/agentcore/internal/permission"
	"github.com/agentcore-ai/agentcore/internal/provider"
	"github.com/agentcore-ai/agentcore/internal/session"
	"github.com/agentcore-ai/agentcore/internal/storage"
	"github.com/agentcore-ai/agentcore/internal/tool"
	"github.com/agentcore-ai/agentcore/pkg/types"
)

// ContextMode controls how a spawned subagent's message log relates to its
// parent's.
type ContextMode string

const (
	// ContextFork snapshots the parent's message history into a new,
	// independent child session at spawn time (the default).
	ContextFork ContextMode = "fork"
	// ContextInherit runs the subtask as a continuation of the parent's own
	// session log rather than copying it.
	ContextInherit ContextMode = "inherit"
)

// SpawnOptions configures one subagent invocation.
type SpawnOptions struct {
	AgentName string
	Prompt    string
	// Model is "sonnet"/"opus"/"haiku" shorthand or a "provider/model" ref;
	// empty keeps the executor's configured default.
	Model string
	// Mode defaults to ContextFork when empty.
	Mode ContextMode
}

// Spawner creates and runs child sessions for subtasks, implementing
// tool.TaskExecutor.
type Spawner struct {
	storage           *storage.Storage
	providerRegistry  *provider.Registry
	toolRegistry      *tool.Registry
	permissionChecker *permission.Checker
	agentRegistry     *agent.Registry
	workDir           string

	defaultProviderID string
	defaultModelID    string
}

// Config holds the dependencies a Spawner needs.
type Config struct {
	Storage           *storage.Storage
	ProviderRegistry  *provider.Registry
	ToolRegistry      *tool.Registry
	PermissionChecker *permission.Checker
	AgentRegistry     *agent.Registry
	WorkDir           string
	DefaultProviderID string
	DefaultModelID    string
}

// New creates a Spawner. The permission checker is shared verbatim with the
// parent, so the approval gate it wraps serializes decisions across the
// whole session tree.
func New(cfg Config) *Spawner {
	return &Spawner{
		storage:           cfg.Storage,
		providerRegistry:  cfg.ProviderRegistry,
		toolRegistry:      cfg.ToolRegistry,
		permissionChecker: cfg.PermissionChecker,
		agentRegistry:     cfg.AgentRegistry,
		workDir:           cfg.WorkDir,
		defaultProviderID: cfg.DefaultProviderID,
		defaultModelID:    cfg.DefaultModelID,
	}
}

// ExecuteSubtask implements tool.TaskExecutor, dispatching to Spawn with the
// default (Fork) context mode.
func (s *Spawner) ExecuteSubtask(ctx context.Context, parentSessionID, agentName, prompt string, opts tool.TaskOptions) (*tool.TaskResult, error) {
	return s.Spawn(ctx, parentSessionID, SpawnOptions{
		AgentName: agentName,
		Prompt:    prompt,
		Model:     opts.Model,
	})
}

// Spawn runs prompt against agentName, either as a new forked session or as
// a continuation of the parent's own log, per opts.Mode.
func (s *Spawner) Spawn(ctx context.Context, parentSessionID string, opts SpawnOptions) (*tool.TaskResult, error) {
	mode := opts.Mode
	if mode == "" {
		mode = ContextFork
	}

	agentConfig, err := s.agentRegistry.Get(opts.AgentName)
	if err != nil {
		return nil, fmt.Errorf("subagent: agent not found: %s: %w", opts.AgentName, err)
	}
	if !agentConfig.IsSubagent() {
		return nil, fmt.Errorf("subagent: agent %s cannot be used as subagent (mode: %s)", opts.AgentName, agentConfig.Mode)
	}

	sessionAgent := convertToSessionAgent(agentConfig)
	providerID, modelID := s.resolveModel(opts.Model)

	var targetSessionID string
	var userMsg *types.Message

	switch mode {
	case ContextInherit:
		targetSessionID = parentSessionID
		userMsg, err = s.appendUserMessage(ctx, parentSessionID, opts.Prompt, providerID, modelID)
		if err != nil {
			return nil, fmt.Errorf("subagent: append inherited message: %w", err)
		}

	default: // ContextFork
		childSession, err := s.createChildSession(ctx, parentSessionID, opts.AgentName)
		if err != nil {
			return nil, fmt.Errorf("subagent: create child session: %w", err)
		}
		if err := s.copyHistory(ctx, parentSessionID, childSession.ID); err != nil {
			return nil, fmt.Errorf("subagent: snapshot parent history: %w", err)
		}
		targetSessionID = childSession.ID
		userMsg, err = s.appendUserMessage(ctx, childSession.ID, opts.Prompt, providerID, modelID)
		if err != nil {
			return nil, fmt.Errorf("subagent: create user message: %w", err)
		}
	}

	processor := session.NewProcessor(
		s.providerRegistry,
		s.toolRegistry,
		s.storage,
		s.permissionChecker,
		providerID,
		modelID,
	)

	var responseParts []types.Part
	var responseMsg *types.Message

	err = processor.Process(ctx, targetSessionID, sessionAgent, func(msg *types.Message, parts []types.Part) {
		responseMsg = msg
		responseParts = parts
	})
	if err != nil {
		return &tool.TaskResult{
			Output:    fmt.Sprintf("Error executing subtask: %s", err.Error()),
			SessionID: targetSessionID,
			Error:     err.Error(),
			Metadata: map[string]any{
				"parentSessionID": parentSessionID,
				"userMessageID":   userMsg.ID,
				"contextMode":     string(mode),
			},
		}, nil
	}

	return &tool.TaskResult{
		Output:    extractTextContent(responseParts),
		SessionID: targetSessionID,
		AgentID:   opts.AgentName,
		Metadata: map[string]any{
			"parentSessionID":    parentSessionID,
			"assistantMessageID": responseMsg.ID,
			"userMessageID":      userMsg.ID,
			"contextMode":        string(mode),
		},
	}, nil
}

// createChildSession creates a new session as a child of the parent
// session, inheriting its working directory.
func (s *Spawner) createChildSession(ctx context.Context, parentSessionID, agentName string) (*types.Session, error) {
	now := time.Now().UnixMilli()
	sessionID := ulid.Make().String()

	directory := s.workDir
	if parent, err := s.findSession(ctx, parentSessionID); err == nil {
		directory = parent.Directory
	}

	projectID := hashDirectory(directory)

	sess := &types.Session{
		ID:        sessionID,
		ProjectID: projectID,
		Directory: directory,
		Title:     fmt.Sprintf("Subtask: %s", agentName),
		ParentID:  &parentSessionID,
		Version:   "1",
		Time:      types.SessionTime{Created: now, Updated: now},
	}

	if err := s.storage.Put(ctx, []string{"session", projectID, sess.ID}, sess); err != nil {
		return nil, err
	}

	event.PublishSync(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{Info: sess},
	})

	return sess, nil
}

// findSession locates a session by ID across every project.
func (s *Spawner) findSession(ctx context.Context, sessionID string) (*types.Session, error) {
	projects, err := s.storage.List(ctx, []string{"session"})
	if err != nil {
		return nil, err
	}
	for _, projectID := range projects {
		var sess types.Session
		if err := s.storage.Get(ctx, []string{"session", projectID, sessionID}, &sess); err == nil {
			return &sess, nil
		}
	}
	return nil, fmt.Errorf("session not found: %s", sessionID)
}

// copyHistory snapshots every message (and its parts) from srcSessionID
// into dstSessionID, giving a Fork-mode child the parent's history through
// the spawn point without linking the two logs going forward.
func (s *Spawner) copyHistory(ctx context.Context, srcSessionID, dstSessionID string) error {
	var messages []*types.Message
	if err := s.storage.Scan(ctx, []string{"message", srcSessionID}, func(key string, data json.RawMessage) error {
		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		messages = append(messages, &msg)
		return nil
	}); err != nil {
		return err
	}

	for _, msg := range messages {
		copied := *msg
		copied.SessionID = dstSessionID
		if err := s.storage.Put(ctx, []string{"message", dstSessionID, copied.ID}, &copied); err != nil {
			return err
		}
		// Parts are keyed by message ID, which is unchanged, so the
		// original part entries remain valid for the copied message.
	}

	return nil
}

// appendUserMessage creates a new user message with prompt under
// sessionID, used both for Fork's fresh child session and Inherit's direct
// append onto the parent's own log.
func (s *Spawner) appendUserMessage(ctx context.Context, sessionID, prompt, providerID, modelID string) (*types.Message, error) {
	sess, err := s.findSession(ctx, sessionID)
	if err != nil {
		// Newly created Fork sessions aren't indexed under multiple
		// projects the same way; fall back to the work directory.
		sess = &types.Session{ID: sessionID, Directory: s.workDir}
	}

	now := time.Now().UnixMilli()
	msgID := ulid.Make().String()

	msg := &types.Message{
		ID:         msgID,
		SessionID:  sessionID,
		Role:       "user",
		ProviderID: providerID,
		ModelID:    modelID,
		Model:      &types.ModelRef{ProviderID: providerID, ModelID: modelID},
		Path:       &types.MessagePath{Cwd: sess.Directory, Root: sess.Directory},
		Time:       types.MessageTime{Created: now},
	}

	if err := s.storage.Put(ctx, []string{"message", sessionID, msg.ID}, msg); err != nil {
		return nil, err
	}

	partID := ulid.Make().String()
	textPart := &types.TextPart{
		ID:        partID,
		SessionID: sessionID,
		MessageID: msg.ID,
		Type:      "text",
		Text:      prompt,
	}
	if err := s.storage.Put(ctx, []string{"part", msg.ID, partID}, textPart); err != nil {
		return nil, err
	}

	event.PublishSync(event.Event{Type: event.MessageCreated, Data: event.MessageCreatedData{Info: msg}})
	event.PublishSync(event.Event{Type: event.MessagePartUpdated, Data: event.MessagePartUpdatedData{Part: textPart}})

	return msg, nil
}

// resolveModel maps a shorthand model option to a concrete provider/model
// pair, or a full "provider/model" ref, falling back to the spawner's
// configured default.
func (s *Spawner) resolveModel(modelOption string) (providerID, modelID string) {
	providerID, modelID = s.defaultProviderID, s.defaultModelID

	switch modelOption {
	case "":
		return providerID, modelID
	case "sonnet":
		return providerID, "claude-sonnet-4-20250514"
	case "opus":
		return providerID, "claude-opus-4-20250514"
	case "haiku":
		return providerID, "claude-haiku-3-20240307"
	}

	if idx := strings.IndexByte(modelOption, '/'); idx >= 0 {
		return modelOption[:idx], modelOption[idx+1:]
	}
	return providerID, modelOption
}

// convertToSessionAgent adapts internal/agent's permission-map shape to
// session.Agent's flat tool lists and string permissions.
func convertToSessionAgent(a *agent.Agent) *session.Agent {
	var enabledTools, disabledTools []string

	hasWildcard, wildcardEnabled := false, false
	for name, enabled := range a.Tools {
		if name == "*" {
			hasWildcard, wildcardEnabled = true, enabled
			continue
		}
		if enabled {
			enabledTools = append(enabledTools, name)
		} else {
			disabledTools = append(disabledTools, name)
		}
	}
	if hasWildcard && wildcardEnabled {
		enabledTools = nil
	}

	bashPerm := "ask"
	if a.Permission.Bash != nil {
		if action, ok := a.Permission.Bash["*"]; ok {
			bashPerm = string(action)
		}
	}

	writePerm := "ask"
	if a.Permission.Edit != "" {
		writePerm = string(a.Permission.Edit)
	}

	doomLoopPerm := "ask"
	if a.Permission.DoomLoop != "" {
		doomLoopPerm = string(a.Permission.DoomLoop)
	}

	maxSteps := a.MaxTurns
	if maxSteps <= 0 {
		maxSteps = session.MaxSteps
	}

	return &session.Agent{
		Name:          a.Name,
		Prompt:        a.Prompt,
		Temperature:   a.Temperature,
		TopP:          a.TopP,
		MaxSteps:      maxSteps,
		Tools:         enabledTools,
		DisabledTools: disabledTools,
		Permission: session.AgentPermission{
			DoomLoop: doomLoopPerm,
			Bash:     bashPerm,
			Write:    writePerm,
		},
	}
}

func extractTextContent(parts []types.Part) string {
	var texts []string
	for _, part := range parts {
		if tp, ok := part.(*types.TextPart); ok && tp.Text != "" {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func hashDirectory(directory string) string {
	h := sha256.New()
	h.Write([]byte(directory))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
