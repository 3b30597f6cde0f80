// Package hook runs the subprocess hooks bound to agent-loop lifecycle
// events (pre_tool, post_tool, pre_prompt, post_response), using the same
// os/exec-with-timeout idiom as internal/promptdoc's shell substitution.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"

	"github.com/agentcore-ai/agentcore/pkg/types"
)

// Event names for each point in the prompt/tool lifecycle.
const (
	EventPreTool      = "pre_tool"
	EventPostTool     = "post_tool"
	EventPrePrompt    = "pre_prompt"
	EventPostResponse = "post_response"
)

// DefaultTimeout is used when a hook config doesn't specify one.
const DefaultTimeout = 30 * time.Second

// Context is the JSON payload serialized to the hook subprocess's stdin.
type Context struct {
	Event     string         `json:"event"`
	SessionID string         `json:"sessionID"`
	ToolName  string         `json:"toolName,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Output    string         `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	Prompt    string         `json:"prompt,omitempty"`
}

// Result is what a hook invocation produced.
type Result struct {
	// Stdout is the captured stdout, non-empty only for pre-* events (it is
	// discarded for post-* events).
	Stdout string
	// Rejected is true when the hook exited non-zero on a pre_tool event,
	// which the agent loop treats as a tool-call rejection.
	Rejected bool
	Err      error
}

// Runner dispatches configured hooks to matching events.
type Runner struct {
	hooks []types.HookConfig
}

// NewRunner builds a Runner from the configured hook list.
func NewRunner(hooks []types.HookConfig) *Runner {
	return &Runner{hooks: hooks}
}

// Matching returns the hooks bound to event whose Matcher (if any) matches
// toolName.
func (r *Runner) Matching(event, toolName string) []types.HookConfig {
	var out []types.HookConfig
	for _, h := range r.hooks {
		if h.Event != event {
			continue
		}
		if h.Matcher == "" || toolName == "" {
			out = append(out, h)
			continue
		}
		if matched, _ := doublestar.Match(h.Matcher, toolName); matched {
			out = append(out, h)
		}
	}
	return out
}

// Run executes every hook bound to event (optionally filtered by toolName
// for pre_tool/post_tool) in order, feeding each the serialized ctx on
// stdin. For pre_prompt/pre_tool events, each hook's stdout is concatenated
// into Result.Stdout. A non-zero exit on a pre_tool hook sets Rejected.
func (r *Runner) Run(ctx context.Context, event, toolName string, payload Context) Result {
	hooks := r.Matching(event, toolName)
	if len(hooks) == 0 {
		return Result{}
	}

	payload.Event = event
	payload.ToolName = toolName
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Err: fmt.Errorf("hook: marshal context: %w", err)}
	}

	var combined bytes.Buffer
	for _, h := range hooks {
		out, rejected, err := r.runOne(ctx, h, body)
		if err != nil {
			log.Warn().Err(err).Str("event", event).Strs("command", h.Command).Msg("hook: execution failed")
			continue
		}
		if event == EventPreTool || event == EventPrePrompt {
			combined.Write(out)
			combined.WriteByte('\n')
		}
		if rejected {
			return Result{Stdout: combined.String(), Rejected: true}
		}
	}

	return Result{Stdout: combined.String()}
}

func (r *Runner) runOne(ctx context.Context, h types.HookConfig, stdin []byte) (out []byte, rejected bool, err error) {
	if len(h.Command) == 0 {
		return nil, false, fmt.Errorf("hook: empty command for event %q", h.Event)
	}

	timeout := DefaultTimeout
	if h.Timeout > 0 {
		timeout = time.Duration(h.Timeout) * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, h.Command[0], h.Command[1:]...)
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	runErr := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, false, fmt.Errorf("hook: timed out after %s", timeout)
	}
	if runErr != nil {
		if h.Event == EventPreTool {
			return stdout.Bytes(), true, nil
		}
		return nil, false, fmt.Errorf("hook: %w", runErr)
	}

	return stdout.Bytes(), false, nil
}
