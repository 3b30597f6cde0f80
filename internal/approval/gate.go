// Package approval implements the process-wide serialization gate through
// which every human-in-the-loop decision passes: tool approvals and
// clarifying questions, from top-level sessions and from subagents alike.
package approval

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrCancelled is returned by a request made for a session that has
// already been marked cancelled with Cancel.
var ErrCancelled = errors.New("session cancelled")

// Response is the outcome of a tool approval request.
type Response struct {
	Approved bool
	Reason   string // populated on rejection
}

// QuestionResponse is the outcome of an ask-question request.
type QuestionResponse struct {
	Answers map[string]string
}

// ToolRequest is a pending request for approval to execute a tool call.
type ToolRequest struct {
	SessionID   string
	CallID      string
	ToolName    string
	Arguments   map[string]any
	Description string

	reply chan Response
}

// Question describes one question posed to the user.
type Question struct {
	ID     string
	Prompt string
	Kind   string // e.g. "text", "choice"
}

// QuestionRequest is a pending request for answers to one or more questions.
type QuestionRequest struct {
	SessionID string
	RequestID string
	Questions []Question

	reply chan QuestionResponse
}

// request is the sum type pushed onto the shared channel; exactly one of
// Tool / Question is non-nil.
type request struct {
	Tool     *ToolRequest
	Question *QuestionRequest
}

// Gate is the single-holder mutex + request channel described in the core
// approval gate invariant: at most one ToolPending/Question is outstanding at
// any instant across every session and subagent sharing the gate.
type Gate struct {
	mu       sync.Mutex
	requests chan request

	cancelMu     sync.Mutex
	cancelledIDs map[string]bool
}

// NewGate creates a gate shared by a session tree (a top-level session and
// every subagent it spawns, transitively).
func NewGate() *Gate {
	return &Gate{
		requests:     make(chan request, 64),
		cancelledIDs: make(map[string]bool),
	}
}

// Requests returns the channel the agent loop drains to forward pending
// approvals/questions to the front-end. Each request carries its own reply
// channel; the loop resolves it via Approve/Reject/Answer below.
func (g *Gate) Requests() <-chan request { return g.requests }

// RequestToolApproval blocks until the front-end approves or rejects the
// call, or ctx is cancelled, or the owning session is marked cancelled.
// It acquires the single-holder mutex for the duration of the wait so that
// no other call — from this session or any subagent sharing the gate — can
// have a pending request at the same time.
func (g *Gate) RequestToolApproval(ctx context.Context, sessionID, callID, toolName string, args map[string]any, description string) (Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.isCancelled(sessionID) {
		return Response{}, ErrCancelled
	}

	req := &ToolRequest{
		SessionID:   sessionID,
		CallID:      callID,
		ToolName:    toolName,
		Arguments:   args,
		Description: description,
		reply:       make(chan Response, 1),
	}

	select {
	case g.requests <- request{Tool: req}:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	log.Debug().Str("sessionID", sessionID).Str("callID", callID).Str("tool", toolName).Msg("approval: waiting for tool approval")

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// AskQuestion blocks until the front-end supplies answers, mirroring
// RequestToolApproval's serialization.
func (g *Gate) AskQuestion(ctx context.Context, sessionID, requestID string, questions []Question) (QuestionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.isCancelled(sessionID) {
		return QuestionResponse{}, ErrCancelled
	}

	req := &QuestionRequest{
		SessionID: sessionID,
		RequestID: requestID,
		Questions: questions,
		reply:     make(chan QuestionResponse, 1),
	}

	select {
	case g.requests <- request{Question: req}:
	case <-ctx.Done():
		return QuestionResponse{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-ctx.Done():
		return QuestionResponse{}, ctx.Err()
	}
}

// Approve resolves a pending tool request as approved.
func (t *ToolRequest) Approve() { t.reply <- Response{Approved: true} }

// Reject resolves a pending tool request as rejected.
func (t *ToolRequest) Reject(reason string) { t.reply <- Response{Approved: false, Reason: reason} }

// Answer resolves a pending question request.
func (q *QuestionRequest) Answer(answers map[string]string) {
	q.reply <- QuestionResponse{Answers: answers}
}

// Cancel marks sessionID cancelled: any later request from that session
// returns ErrCancelled immediately. A request that is already waiting is
// not interrupted; it returns only when its ctx is done or a reply arrives.
func (g *Gate) Cancel(sessionID string) {
	g.cancelMu.Lock()
	defer g.cancelMu.Unlock()
	g.cancelledIDs[sessionID] = true
}

func (g *Gate) isCancelled(sessionID string) bool {
	g.cancelMu.Lock()
	defer g.cancelMu.Unlock()
	return g.cancelledIDs[sessionID]
}
