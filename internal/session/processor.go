package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentcore-ai/agentcore/internal/ctxmonitor"
	"github.com/agentcore-ai/agentcore/internal/permission"
	"github.com/agentcore-ai/agentcore/internal/provider"
	"github.com/agentcore-ai/agentcore/internal/storage"
	"github.com/agentcore-ai/agentcore/internal/tool"
	"github.com/agentcore-ai/agentcore/pkg/types"
)

// PromptBuilder composes the system prompt for one completion turn. The
// default path is the in-package SystemPrompt pipeline; a caller that
// wants memory-hierarchy composition plus pre_prompt hooks installs a
// richer implementation via SetPromptBuilder.
type PromptBuilder interface {
	BuildSystemPrompt(ctx context.Context, sess *types.Session, ag *Agent, providerID, modelID string) string
}

// Processor handles message processing and the agentic loop.
type Processor struct {
	mu sync.Mutex

	providerRegistry  *provider.Registry
	toolRegistry      *tool.Registry
	storage           *storage.Storage
	permissionChecker *permission.Checker
	promptBuilder     PromptBuilder

	// Default provider and model to use when not specified
	defaultProviderID string
	defaultModelID    string

	// Active sessions being processed
	sessions map[string]*sessionState

	monitorsMu sync.Mutex
	monitors   map[string]*ctxmonitor.Monitor
}

// SetPromptBuilder installs the prompt pipeline used for every subsequent
// completion request on this processor.
func (p *Processor) SetPromptBuilder(b PromptBuilder) {
	p.mu.Lock()
	p.promptBuilder = b
	p.mu.Unlock()
}

// RespondPermission resolves a pending approval or question request the
// agent loop is blocked on. response is "once", "always", or "reject".
func (p *Processor) RespondPermission(requestID, response string) {
	if p.permissionChecker == nil {
		return
	}
	if response == "reject" {
		p.permissionChecker.Reject(requestID, "")
		return
	}
	p.permissionChecker.Respond(requestID, response)
}

// RejectPermission resolves a pending tool approval as rejected, carrying
// the front-end's reason back to the model as the tool's error output.
func (p *Processor) RejectPermission(requestID, reason string) {
	if p.permissionChecker != nil {
		p.permissionChecker.Reject(requestID, reason)
	}
}

// AnswerQuestion resolves a pending question request with the front-end's
// answers.
func (p *Processor) AnswerQuestion(requestID string, answers map[string]string) {
	if p.permissionChecker != nil {
		p.permissionChecker.Answer(requestID, answers)
	}
}

// contextMonitor returns (creating if necessary) the token/compaction
// monitor for a session, bound to the provider/model of its current turn.
func (p *Processor) contextMonitor(sessionID, providerID, modelID string) *ctxmonitor.Monitor {
	p.monitorsMu.Lock()
	defer p.monitorsMu.Unlock()
	m, ok := p.monitors[sessionID]
	if !ok {
		var resolver ctxmonitor.ModelLimitResolver
		if p.providerRegistry != nil {
			resolver = p.providerRegistry
		}
		m = ctxmonitor.NewMonitor(providerID, modelID, resolver)
		p.monitors[sessionID] = m
	}
	return m
}

// sessionState tracks the state of an active session being processed.
type sessionState struct {
	ctx      context.Context
	cancel   context.CancelFunc
	message  *types.Message
	parts    []types.Part
	waiters  []chan error
	step     int
	retries  int
}

// ProcessCallback is called with message updates during processing.
type ProcessCallback func(msg *types.Message, parts []types.Part)

// NewProcessor creates a new session processor.
func NewProcessor(
	providerReg *provider.Registry,
	toolReg *tool.Registry,
	store *storage.Storage,
	permChecker *permission.Checker,
	defaultProviderID string,
	defaultModelID string,
) *Processor {
	// Use reasonable defaults if not specified
	if defaultProviderID == "" {
		defaultProviderID = "anthropic"
	}
	if defaultModelID == "" {
		defaultModelID = "claude-sonnet-4-20250514"
	}
	return &Processor{
		providerRegistry:  providerReg,
		toolRegistry:      toolReg,
		storage:           store,
		permissionChecker: permChecker,
		defaultProviderID: defaultProviderID,
		defaultModelID:    defaultModelID,
		sessions:          make(map[string]*sessionState),
		monitors:          make(map[string]*ctxmonitor.Monitor),
	}
}

// Process handles a new user message and generates an assistant response.
// This is the main entry point for the agentic loop.
func (p *Processor) Process(ctx context.Context, sessionID string, agent *Agent, callback ProcessCallback) error {
	p.mu.Lock()

	// Check if session is already processing
	if state, ok := p.sessions[sessionID]; ok {
		// Queue this request
		waiter := make(chan error, 1)
		state.waiters = append(state.waiters, waiter)
		p.mu.Unlock()

		// Wait for current processing to complete
		select {
		case err := <-waiter:
			if err != nil {
				return err
			}
			// Retry processing
			return p.Process(ctx, sessionID, agent, callback)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Create new session state
	loopCtx, cancel := context.WithCancel(ctx)
	state := &sessionState{
		ctx:    loopCtx,
		cancel: cancel,
	}
	p.sessions[sessionID] = state
	p.mu.Unlock()

	// Ensure cleanup
	defer func() {
		p.mu.Lock()
		delete(p.sessions, sessionID)

		// Notify waiters
		for _, waiter := range state.waiters {
			waiter <- nil
		}
		p.mu.Unlock()
	}()

	// Run the agentic loop
	return p.runLoop(loopCtx, sessionID, state, agent, callback)
}

// Abort cancels processing for a session.
func (p *Processor) Abort(sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not processing: %s", sessionID)
	}

	state.cancel()
	return nil
}

// IsProcessing returns whether a session is currently processing.
func (p *Processor) IsProcessing(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[sessionID]
	return ok
}

// GetActiveState returns the current state for a processing session.
func (p *Processor) GetActiveState(sessionID string) (*types.Message, []types.Part, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.sessions[sessionID]
	if !ok {
		return nil, nil, false
	}

	return state.message, state.parts, true
}
