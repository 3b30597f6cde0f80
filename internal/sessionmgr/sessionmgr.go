// Package sessionmgr implements the session manager: one input sender per
// live session, keyed by id, plus a broadcast output channel carrying
// (id, SessionOutput) pairs to the front-end. SessionInput is a tagged
// union — user messages queue per session, while approval decisions,
// question answers, and cancellation route straight to the shared
// permission checker/gate the blocked turn is waiting on. PushMessage
// creates a session on first use by invoking a stored SessionConfig
// factory; StopSession closes the input sender so the agent loop
// (internal/agentloop) observes channel closure and exits, the same
// context-cancellation idiom internal/lsp/client.go and
// internal/mcp/client.go use for their subprocess lifecycles. Broadcasting every session's output rides on
// internal/event.Bus's watermill-backed pub/sub rather than a bespoke
// subscriber list, so sessionmgr output reaches the same SSE stream as
// every other server-side event.
package sessionmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentcore-ai/agentcore/internal/agentloop"
	"github.com/agentcore-ai/agentcore/internal/event"
	"github.com/agentcore-ai/agentcore/internal/session"
	"github.com/agentcore-ai/agentcore/internal/storage"
	"github.com/agentcore-ai/agentcore/pkg/types"
)

func nowMillis() int64 { return time.Now().UnixMilli() }

func newID() string { return ulid.Make().String() }

// InputKind discriminates the session-input union. Serialized values are
// snake_case.
type InputKind string

const (
	InputUserMessage    InputKind = "user_message"
	InputApproveTool    InputKind = "approve_tool"
	InputRejectTool     InputKind = "reject_tool"
	InputAnswerQuestion InputKind = "answer_question"
	InputCancel         InputKind = "cancel"
	InputSetPlanMode    InputKind = "set_plan_mode"
)

// SessionInput is one front-end-originated input for a session: a user
// turn, a decision on a pending approval/question, a cancellation, or a
// plan-mode flip. An empty Kind means a user message, so plain-text callers
// need not name the variant.
type SessionInput struct {
	Kind InputKind `json:"type,omitempty"`

	// user_message
	Text  string   `json:"text,omitempty"`
	Files []string `json:"files,omitempty"`

	// approve_tool / reject_tool / answer_question: the pending request id
	ID      string            `json:"id,omitempty"`
	Reason  string            `json:"reason,omitempty"`
	Answers map[string]string `json:"answers,omitempty"`

	// set_plan_mode
	Active bool `json:"active,omitempty"`
}

// SessionOutput is a broadcast event: either a streamed assistant
// message/parts pair, or a terminal error for the session's current turn.
type SessionOutput struct {
	SessionID string
	Message   *types.Message
	Parts     []types.Part
	Err       error
}

// SessionConfig describes how a session's agent loop should run and
// whether its transcript should be snapshotted via internal/persist when
// the session closes.
type SessionConfig struct {
	Agent            *session.Agent
	MaxStepsOverride int
	SystemPrompt     string
	ProviderType     string
	Model            string
	Persist          bool
}

// Factory builds the SessionConfig for a session the first time
// push_message sees its id — e.g. looking up agent/model overrides from a
// request, or defaulting to session.DefaultAgent().
type Factory func(ctx context.Context, id string) (*SessionConfig, error)

// Subscriber receives every SessionOutput broadcast across all sessions.
type Subscriber func(SessionOutput)

// entry pairs a session's input sender with a separate stop signal. Closing
// ch directly from StopSession would race any in-flight PushMessage send on
// the same channel ("send on closed channel"), so stop is a dedicated,
// once-closed channel that run's select observes instead.
type entry struct {
	ch   chan SessionInput
	stop chan struct{}

	mu       sync.Mutex
	planMode bool
}

func (e *entry) setPlanMode(on bool) {
	e.mu.Lock()
	e.planMode = on
	e.mu.Unlock()
}

func (e *entry) inPlanMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.planMode
}

// Manager is the {id -> input sender} session manager.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry

	bus *event.Bus

	loop      *agentloop.Runner
	storage   *storage.Storage
	persister Persister
	factory   Factory

	wg sync.WaitGroup
}

// Persister is the subset of internal/persist.Store a Manager needs;
// accepting an interface keeps sessionmgr free of a persist import cycle
// and lets tests supply a stub.
type Persister interface {
	SaveSession(ctx context.Context, sessionID, systemPrompt, providerType, model string) error
}

// New builds a Manager. loop runs each session's agentic turns; storage
// backs the user-message writes push_message performs ahead of each turn;
// persister, if non-nil, is invoked for any session whose SessionConfig
// sets Persist=true when that session's input channel closes. bus carries
// every session's output as event.SessionMgrOutput events; a nil bus falls
// back to the package-level global bus, the same one internal/server's SSE
// handler already subscribes to.
func New(loop *agentloop.Runner, store *storage.Storage, factory Factory, persister Persister, bus *event.Bus) *Manager {
	return &Manager{
		sessions:  make(map[string]*entry),
		loop:      loop,
		storage:   store,
		persister: persister,
		factory:   factory,
		bus:       bus,
	}
}

// Subscribe registers fn to receive every SessionOutput broadcast. The
// returned func unsubscribes.
func (m *Manager) Subscribe(fn Subscriber) func() {
	wrapped := func(e event.Event) {
		if out, ok := e.Data.(SessionOutput); ok {
			fn(out)
		}
	}
	if m.bus != nil {
		return m.bus.Subscribe(event.SessionMgrOutput, wrapped)
	}
	return event.Subscribe(event.SessionMgrOutput, wrapped)
}

func (m *Manager) broadcast(out SessionOutput) {
	evt := event.Event{Type: event.SessionMgrOutput, Data: out}
	if m.bus != nil {
		m.bus.PublishSync(evt)
		return
	}
	event.PublishSync(evt)
}

// PushMessage routes input to session id. User messages queue on the
// session's input channel, creating the session (via the configured
// Factory) on first use. Approval decisions, answers, and cancellation are
// handled immediately instead of queueing: the session's run goroutine is
// blocked inside the turn that raised the request, so a queued decision
// would deadlock behind it.
func (m *Manager) PushMessage(ctx context.Context, id string, input SessionInput) error {
	switch input.Kind {
	case InputApproveTool:
		m.loop.Checker.Respond(input.ID, "approve")
		return nil

	case InputRejectTool:
		m.loop.Checker.Reject(input.ID, input.Reason)
		return nil

	case InputAnswerQuestion:
		m.loop.Checker.Answer(input.ID, input.Answers)
		return nil

	case InputCancel:
		// Unblock any approval wait first, then abort the in-flight turn.
		m.loop.Checker.ClearSession(id)
		m.loop.Processor.Abort(id)
		return nil

	case InputSetPlanMode:
		m.mu.Lock()
		e, ok := m.sessions[id]
		m.mu.Unlock()
		if !ok {
			return fmt.Errorf("sessionmgr: session %s not active", id)
		}
		e.setPlanMode(input.Active)
		return nil
	}

	if input.Kind != "" && input.Kind != InputUserMessage {
		return fmt.Errorf("sessionmgr: unknown input type %q", input.Kind)
	}

	e, err := m.getOrCreate(ctx, id)
	if err != nil {
		return err
	}

	select {
	case e.ch <- input:
		return nil
	case <-e.stop:
		return fmt.Errorf("sessionmgr: session %s stopped", id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) getOrCreate(ctx context.Context, id string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[id]; ok {
		return e, nil
	}

	cfg, err := m.factory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("sessionmgr: build config for %s: %w", id, err)
	}
	if cfg.Agent == nil {
		cfg.Agent = session.DefaultAgent()
	}

	e := &entry{ch: make(chan SessionInput, 8), stop: make(chan struct{})}
	m.sessions[id] = e

	m.wg.Add(1)
	go m.run(id, e, cfg)

	return e, nil
}

// run processes inputs for one session until it's told to stop, then
// persists (if configured) and removes the session from the map.
func (m *Manager) run(id string, e *entry, cfg *SessionConfig) {
	defer m.wg.Done()

loop:
	for {
		select {
		case input := <-e.ch:
			ctx := context.Background()
			if err := m.appendUserMessage(ctx, id, input); err != nil {
				m.broadcast(SessionOutput{SessionID: id, Err: err})
				continue
			}

			// Plan mode narrows the advertised tool set for this turn
			// without touching the session's configured agent.
			turnAgent := cfg.Agent
			if e.inPlanMode() {
				turnAgent = session.PlanAgent()
			}

			err := m.loop.RunTopLevel(ctx, id, turnAgent, cfg.MaxStepsOverride, func(msg *types.Message, parts []types.Part) {
				m.broadcast(SessionOutput{SessionID: id, Message: msg, Parts: parts})
			})
			if err != nil {
				m.broadcast(SessionOutput{SessionID: id, Err: err})
			}
		case <-e.stop:
			break loop
		}
	}

	if cfg.Persist && m.persister != nil {
		if err := m.persister.SaveSession(context.Background(), id, cfg.SystemPrompt, cfg.ProviderType, cfg.Model); err != nil {
			m.broadcast(SessionOutput{SessionID: id, Err: fmt.Errorf("sessionmgr: persist %s: %w", id, err)})
		}
	}

	m.mu.Lock()
	if m.sessions[id] == e {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
}

// StopSession signals id's run goroutine to exit once its current turn (if
// any) finishes. A subsequent push_message for the same id starts a fresh
// session rather than reusing the stopped one.
func (m *Manager) StopSession(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[id]; ok {
		close(e.stop)
		delete(m.sessions, id)
	}
}

// StopAll closes every session's input sender.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.StopSession(id)
	}
}

// Wait blocks until every session's run goroutine has exited — useful in
// tests and graceful-shutdown paths after StopAll.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// IsActive reports whether id currently has an open input sender.
func (m *Manager) IsActive(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

// appendUserMessage persists input as a user message, creating the session
// record itself first if this is the session's first turn.
func (m *Manager) appendUserMessage(ctx context.Context, sessionID string, input SessionInput) error {
	var sess types.Session
	if err := m.storage.Get(ctx, []string{"session", sessionID}, &sess); err != nil {
		sess = types.Session{
			ID:    sessionID,
			Title: title(input.Text),
			Time:  types.SessionTime{Created: nowMillis()},
		}
		if err := m.storage.Put(ctx, []string{"session", sessionID}, &sess); err != nil {
			return fmt.Errorf("sessionmgr: create session %s: %w", sessionID, err)
		}
	}

	content := input.Text
	for _, f := range input.Files {
		content += "\n\n--- File: " + f + " ---"
	}

	msgID := newID()
	msg := &types.Message{
		ID:        msgID,
		SessionID: sessionID,
		Role:      "user",
		Time:      types.MessageTime{Created: nowMillis()},
	}
	if err := m.storage.Put(ctx, []string{"message", sessionID, msgID}, msg); err != nil {
		return err
	}

	part := &types.TextPart{ID: newID(), Type: "text", MessageID: msgID, Text: content}
	return m.storage.Put(ctx, []string{"part", msgID, part.ID}, part)
}

func title(text string) string {
	const max = 60
	if len(text) <= max {
		return text
	}
	return text[:max]
}
