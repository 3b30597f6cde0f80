package types

// Message represents either a User or Assistant message in a conversation.
type Message struct {
	ID        string       `json:"id"`
	SessionID string       `json:"sessionID"`
	Role      string       `json:"role"` // "user" | "assistant"
	Time      MessageTime  `json:"time"`

	// User-specific fields
	Agent  string          `json:"agent,omitempty"`
	Model  *ModelRef       `json:"model,omitempty"`
	System *string         `json:"system,omitempty"`
	Tools  map[string]bool `json:"tools,omitempty"`

	// Assistant-specific fields
	ModelID    string        `json:"modelID,omitempty"`
	ProviderID string        `json:"providerID,omitempty"`
	Mode       string        `json:"mode,omitempty"`
	Finish     *string       `json:"finish,omitempty"`
	Cost       float64       `json:"cost,omitempty"`
	Tokens     *TokenUsage   `json:"tokens,omitempty"`
	Error      *MessageError `json:"error,omitempty"`

	// Path pins the message to the directory it was issued from, so tools
	// resolve relative paths against the right root.
	Path *MessagePath `json:"path,omitempty"`
}

// MessagePath records the working directory and project root a message was
// created under.
type MessagePath struct {
	Cwd  string `json:"cwd"`
	Root string `json:"root"`
}

// MessageTime contains timestamps for a message.
type MessageTime struct {
	Created int64  `json:"created"`
	Updated *int64 `json:"updated,omitempty"`
}

// ModelRef references a specific model from a provider.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// TokenUsage contains token usage statistics for a message.
type TokenUsage struct {
	Input     int        `json:"input"`
	Output    int        `json:"output"`
	Reasoning int        `json:"reasoning,omitempty"`
	Cache     CacheUsage `json:"cache,omitempty"`
}

// CacheUsage contains cache hit/write statistics.
type CacheUsage struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

// MessageError represents an error that occurred during message processing.
type MessageError struct {
	Type    string `json:"type"` // "api" | "auth" | "output_length"
	Message string `json:"message"`
}

// NewUnknownError wraps an unclassified failure for the wire.
func NewUnknownError(message string) *MessageError {
	return &MessageError{Type: "unknown", Message: message}
}

// TodoInfo is one entry in a session's todo list, maintained by the
// todowrite/todoread tools.
type TodoInfo struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Status   string `json:"status"`   // "pending" | "in_progress" | "completed"
	Priority string `json:"priority"` // "high" | "medium" | "low"
}
