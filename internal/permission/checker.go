package permission

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/agentcore-ai/agentcore/internal/approval"
	"github.com/agentcore-ai/agentcore/internal/event"
)

// Checker handles permission checks and approvals. It is the per-session
// cached-decision policy layer sitting in front of the shared approval
// pipeline: remembered "always" decisions and bash-pattern allowlists are
// applied here without ever touching the gate; anything not already
// decided is serialized through the shared Gate so that at most one
// decision is outstanding at a time across every session and subagent
// that share this Checker.
type Checker struct {
	mu       sync.RWMutex
	approved map[string]map[PermissionType]bool // sessionID -> type -> approved
	patterns map[string]map[string]bool         // sessionID -> pattern -> approved (for bash patterns)

	gate *approval.Gate

	pendingMu sync.Mutex
	pending   map[string]pendingRequest // requestID -> live gate request
}

// pendingRequest holds whichever of Tool/Question is outstanding for a
// requestID, so Respond can resolve it.
type pendingRequest struct {
	tool     *approval.ToolRequest
	question *approval.QuestionRequest
}

// NewChecker creates a new permission checker backed by its own gate.
func NewChecker() *Checker {
	return NewCheckerWithGate(approval.NewGate())
}

// NewCheckerWithGate creates a permission checker backed by an existing
// gate, so that a parent session and every subagent it spawns serialize
// their approvals through the same single-holder mutex.
func NewCheckerWithGate(gate *approval.Gate) *Checker {
	c := &Checker{
		approved: make(map[string]map[PermissionType]bool),
		patterns: make(map[string]map[string]bool),
		gate:     gate,
		pending:  make(map[string]pendingRequest),
	}
	go c.drainGate()
	return c
}

// Gate returns the underlying approval gate, for cloning into subagents
// that need direct access (e.g. to call Cancel on session teardown).
func (c *Checker) Gate() *approval.Gate {
	return c.gate
}

// drainGate forwards every request the gate emits to the front-end as a
// permission.updated event, keeping the live request object around so
// Respond can resolve it later. This is the single reader of the gate's
// request channel; it is what makes "at most one outstanding request"
// observable to the front-end.
func (c *Checker) drainGate() {
	for req := range c.gate.Requests() {
		switch {
		case req.Tool != nil:
			id := req.Tool.CallID
			c.pendingMu.Lock()
			c.pending[id] = pendingRequest{tool: req.Tool}
			c.pendingMu.Unlock()

			var pattern []string
			if p, ok := req.Tool.Arguments["pattern"].([]string); ok {
				pattern = p
			}

			event.Publish(event.Event{
				Type: event.PermissionRequired,
				Data: event.PermissionRequiredData{
					ID:             id,
					SessionID:      req.Tool.SessionID,
					PermissionType: req.Tool.ToolName,
					Pattern:        pattern,
					Title:          req.Tool.Description,
				},
			})

		case req.Question != nil:
			c.pendingMu.Lock()
			c.pending[req.Question.RequestID] = pendingRequest{question: req.Question}
			c.pendingMu.Unlock()

			event.Publish(event.Event{
				Type: event.PermissionRequired,
				Data: event.PermissionRequiredData{
					ID:        req.Question.RequestID,
					SessionID: req.Question.SessionID,
				},
			})
		}
	}
}

// Check performs a permission check based on action configuration.
func (c *Checker) Check(ctx context.Context, req Request, action PermissionAction) error {
	switch action {
	case ActionAllow:
		return nil
	case ActionDeny:
		return &RejectedError{
			SessionID: req.SessionID,
			Type:      req.Type,
			CallID:    req.CallID,
			Metadata:  req.Metadata,
			Message:   "Permission denied by configuration",
		}
	case ActionAsk:
		return c.Ask(ctx, req)
	}
	return nil
}

// Ask prompts the user for permission, serializing through the shared
// gate unless an earlier "always" decision already covers this request.
func (c *Checker) Ask(ctx context.Context, req Request) error {
	// Check if already approved for this session and type
	c.mu.RLock()
	if sessionApprovals, ok := c.approved[req.SessionID]; ok {
		if sessionApprovals[req.Type] {
			c.mu.RUnlock()
			return nil
		}
	}

	// Check if any pattern is approved
	if len(req.Pattern) > 0 {
		if sessionPatterns, ok := c.patterns[req.SessionID]; ok {
			allApproved := true
			for _, p := range req.Pattern {
				if !sessionPatterns[p] {
					allApproved = false
					break
				}
			}
			if allApproved {
				c.mu.RUnlock()
				return nil
			}
		}
	}
	c.mu.RUnlock()

	if req.ID == "" {
		req.ID = ulid.Make().String()
	}

	args := make(map[string]any, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		args[k] = v
	}
	if len(req.Pattern) > 0 {
		args["pattern"] = req.Pattern
	}

	resp, err := c.gate.RequestToolApproval(ctx, req.SessionID, req.ID, string(req.Type), args, req.Title)
	if err != nil {
		return err
	}

	event.Publish(event.Event{
		Type: event.PermissionResolved,
		Data: event.PermissionResolvedData{Granted: resp.Approved},
	})

	if !resp.Approved {
		return &RejectedError{
			SessionID: req.SessionID,
			Type:      req.Type,
			CallID:    req.CallID,
			Metadata:  req.Metadata,
			Message:   resp.Reason,
		}
	}

	return nil
}

// AskQuestions routes a set of clarifying questions through the gate and
// returns the front-end's answers.
func (c *Checker) AskQuestions(ctx context.Context, sessionID, requestID string, questions []approval.Question) (map[string]string, error) {
	resp, err := c.gate.AskQuestion(ctx, sessionID, requestID, questions)
	if err != nil {
		return nil, err
	}
	return resp.Answers, nil
}

// Respond handles a user's response to a permission request, resolving
// whichever gate request (tool approval or question) is pending under id.
func (c *Checker) Respond(requestID string, action string) {
	c.pendingMu.Lock()
	p, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.pendingMu.Unlock()

	if !ok {
		return
	}

	switch {
	case p.tool != nil:
		switch action {
		case "reject":
			p.tool.Reject("Permission rejected by user")
		default:
			p.tool.Approve()
			if action == "always" {
				c.approve(p.tool.SessionID, PermissionType(p.tool.ToolName), nil)
			}
		}
	case p.question != nil:
		p.question.Answer(map[string]string{"response": action})
	}
}

// Reject resolves a pending tool-approval request with an explicit reason,
// which the agent loop records as the tool's error output.
func (c *Checker) Reject(requestID, reason string) {
	c.pendingMu.Lock()
	p, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.pendingMu.Unlock()

	if !ok || p.tool == nil {
		return
	}
	if reason == "" {
		reason = "Permission rejected by user"
	}
	p.tool.Reject(reason)
}

// Answer resolves a pending question request with the front-end's answers.
func (c *Checker) Answer(requestID string, answers map[string]string) {
	c.pendingMu.Lock()
	p, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.pendingMu.Unlock()

	if !ok || p.question == nil {
		return
	}
	p.question.Answer(answers)
}

// approve marks a permission type and patterns as approved for a session.
func (c *Checker) approve(sessionID string, permType PermissionType, patterns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.approved[sessionID] == nil {
		c.approved[sessionID] = make(map[PermissionType]bool)
	}
	c.approved[sessionID][permType] = true

	if len(patterns) > 0 {
		if c.patterns[sessionID] == nil {
			c.patterns[sessionID] = make(map[string]bool)
		}
		for _, p := range patterns {
			c.patterns[sessionID][p] = true
		}
	}
}

// IsApproved checks if a permission type is already approved.
func (c *Checker) IsApproved(sessionID string, permType PermissionType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if sessionApprovals, ok := c.approved[sessionID]; ok {
		return sessionApprovals[permType]
	}
	return false
}

// IsPatternApproved checks if a specific pattern is already approved.
func (c *Checker) IsPatternApproved(sessionID string, pattern string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if sessionPatterns, ok := c.patterns[sessionID]; ok {
		return sessionPatterns[pattern]
	}
	return false
}

// ClearSession clears all approvals for a session and cancels any request
// of its still outstanding in the gate.
func (c *Checker) ClearSession(sessionID string) {
	c.mu.Lock()
	delete(c.approved, sessionID)
	delete(c.patterns, sessionID)
	c.mu.Unlock()

	c.gate.Cancel(sessionID)
}

// ApprovePattern explicitly approves a pattern for a session.
func (c *Checker) ApprovePattern(sessionID string, pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.patterns[sessionID] == nil {
		c.patterns[sessionID] = make(map[string]bool)
	}
	c.patterns[sessionID][pattern] = true
}
