package types

import "encoding/json"

// Part represents a component of an assistant message.
// Every part carries sessionID and messageID so clients can route it.
type Part interface {
	PartType() string
	PartID() string
	PartSessionID() string
	PartMessageID() string
}

// PartTime contains timing information for a message part.
type PartTime struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

// TextPart represents a text content part.

type TextPart struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"`
	MessageID string         `json:"messageID"`
	Type      string         `json:"type"`      // always "text"
	Text      string         `json:"text"`
	Time      PartTime       `json:"time,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (p *TextPart) PartType() string      { return "text" }
func (p *TextPart) PartID() string        { return p.ID }
func (p *TextPart) PartSessionID() string { return p.SessionID }
func (p *TextPart) PartMessageID() string { return p.MessageID }

// ReasoningPart represents extended thinking/reasoning content.

type ReasoningPart struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionID"`
	MessageID string   `json:"messageID"`
	Type      string   `json:"type"`      // always "reasoning"
	Text      string   `json:"text"`
	Time      PartTime `json:"time,omitempty"`
}

func (p *ReasoningPart) PartType() string      { return "reasoning" }
func (p *ReasoningPart) PartID() string        { return p.ID }
func (p *ReasoningPart) PartSessionID() string { return p.SessionID }
func (p *ReasoningPart) PartMessageID() string { return p.MessageID }

// ToolPart represents a tool call and its result.

type ToolPart struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"`
	MessageID string         `json:"messageID"`
	Type      string         `json:"type"` // always "tool"
	CallID    string         `json:"callID"`
	Tool      string         `json:"tool"`
	State     ToolState      `json:"state"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ToolState tracks one tool call from the model's first streamed delta
// through execution: Raw accumulates the streamed argument JSON until it
// parses into Input; Output/Error/Title land when execution settles.
type ToolState struct {
	Status      string         `json:"status"` // "pending" | "running" | "completed" | "error"
	Input       map[string]any `json:"input,omitempty"`
	Raw         string         `json:"raw,omitempty"`
	Output      string         `json:"output,omitempty"`
	Title       string         `json:"title,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Time        ToolTime       `json:"time,omitempty"`
	Attachments []FilePart     `json:"attachments,omitempty"`
}

// ToolTime brackets a tool call's execution window.
type ToolTime struct {
	Start int64  `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

func (p *ToolPart) PartType() string      { return "tool" }
func (p *ToolPart) PartID() string        { return p.ID }
func (p *ToolPart) PartSessionID() string { return p.SessionID }
func (p *ToolPart) PartMessageID() string { return p.MessageID }

// FilePart represents a file attachment.

type FilePart struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Type      string `json:"type"`      // always "file"
	Filename  string `json:"filename"`
	MediaType string `json:"mediaType"`
	URL       string `json:"url"`
}

func (p *FilePart) PartType() string      { return "file" }
func (p *FilePart) PartID() string        { return p.ID }
func (p *FilePart) PartSessionID() string { return p.SessionID }
func (p *FilePart) PartMessageID() string { return p.MessageID }

// StepStartPart marks the beginning of one inference step within an
// assistant message.
type StepStartPart struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Type      string `json:"type"` // always "step-start"
}

func (p *StepStartPart) PartType() string      { return "step-start" }
func (p *StepStartPart) PartID() string        { return p.ID }
func (p *StepStartPart) PartSessionID() string { return p.SessionID }
func (p *StepStartPart) PartMessageID() string { return p.MessageID }

// StepFinishPart closes one inference step, carrying the finish reason and
// the cost/token accounting for that step.
type StepFinishPart struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	MessageID string      `json:"messageID"`
	Type      string      `json:"type"` // always "step-finish"
	Reason    string      `json:"reason,omitempty"`
	Cost      float64     `json:"cost,omitempty"`
	Tokens    *TokenUsage `json:"tokens,omitempty"`
}

func (p *StepFinishPart) PartType() string      { return "step-finish" }
func (p *StepFinishPart) PartID() string        { return p.ID }
func (p *StepFinishPart) PartSessionID() string { return p.SessionID }
func (p *StepFinishPart) PartMessageID() string { return p.MessageID }

// RawPart is used for JSON unmarshaling of parts.
type RawPart struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"-"`
}

// UnmarshalPart unmarshals a JSON part into the appropriate type.
func UnmarshalPart(data []byte) (Part, error) {
	var raw RawPart
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch raw.Type {
	case "text":
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "reasoning":
		var p ReasoningPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "tool":
		var p ToolPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "file":
		var p FilePart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "step-start":
		var p StepStartPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "step-finish":
		var p StepFinishPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		// Return raw part for unknown types
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	}
}
