// Package promptbuild implements the prompt builder & pipeline:
// substitute template variables into a base system prompt, concatenate it
// with the memory hierarchy and tool-use directives, and run the
// pre-prompt/post-response hooks around the assembly.
//
// It generalizes internal/session.SystemPrompt.Build's fixed pipeline
// (provider header -> agent prompt -> model instructions -> environment ->
// memory hierarchy -> tool instructions) by wrapping it with hook
// invocations from internal/hook and exposing the tool_restrictions /
// model_preference the agent loop needs alongside the composed prompt.
package promptbuild

import (
	"context"
	"strings"

	"github.com/agentcore-ai/agentcore/internal/hook"
	"github.com/agentcore-ai/agentcore/internal/promptdoc"
	"github.com/agentcore-ai/agentcore/internal/registry"
	"github.com/agentcore-ai/agentcore/internal/session"
	"github.com/agentcore-ai/agentcore/pkg/types"
)

// Result is what Build produces: the fully assembled system prompt plus the
// tool/model preferences the agent loop should apply when issuing the next
// completion request.
type Result struct {
	SystemPrompt     string
	ToolRestrictions []string // tool IDs explicitly enabled; nil means "use agent defaults"
	ModelPreference  string   // the model ID Build was called with
}

// Builder assembles system prompts for one session, consulting a component
// registry for the memory hierarchy and hooks.
type Builder struct {
	Registry *registry.Registry
}

// New creates a Builder bound to reg.
func New(reg *registry.Registry) *Builder {
	return &Builder{Registry: reg}
}

// Build composes the system prompt for sess/agent/provider/model, expands
// `${VAR}` template variables in the base agent prompt via
// internal/promptdoc, and fires pre_prompt hooks whose stdout is appended
// at the end of the prompt under a "# Hook Context" heading.
func (b *Builder) Build(ctx context.Context, sess *types.Session, ag *session.Agent, providerID, modelID string, vars promptdoc.TemplateVars, instructions []string) Result {
	sp := session.NewSystemPrompt(sess, ag, providerID, modelID).WithInstructions(instructions)
	base := sp.Build()
	base = promptdoc.ExpandTemplateVars(base, vars)

	if b.Registry != nil {
		if hooks := b.Registry.GetHooks(); hooks != nil {
			sessionID := ""
			if sess != nil {
				sessionID = sess.ID
			}
			result := hooks.Run(ctx, hook.EventPrePrompt, "", hook.Context{SessionID: sessionID, Prompt: base})
			if strings.TrimSpace(result.Stdout) != "" {
				base = base + "\n\n# Hook Context\n\n" + strings.TrimSpace(result.Stdout)
			}
		}
	}

	var toolRestrictions []string
	if ag != nil && len(ag.Tools) > 0 {
		toolRestrictions = ag.Tools
	}

	return Result{
		SystemPrompt:     base,
		ToolRestrictions: toolRestrictions,
		ModelPreference:  modelID,
	}
}

// BuildSystemPrompt satisfies session.PromptBuilder: it runs Build with
// caller-neutral template variables and returns only the composed prompt.
func (b *Builder) BuildSystemPrompt(ctx context.Context, sess *types.Session, ag *session.Agent, providerID, modelID string) string {
	workDir := ""
	if sess != nil {
		workDir = sess.Directory
	}
	return b.Build(ctx, sess, ag, providerID, modelID, promptdoc.DefaultTemplateVars(workDir, modelID), nil).SystemPrompt
}

// PostResponse fires post_response hooks after an assistant turn completes,
// so external observers can react to completed assistant turns.
func (b *Builder) PostResponse(ctx context.Context, sessionID, output string) {
	if b.Registry == nil {
		return
	}
	hooks := b.Registry.GetHooks()
	if hooks == nil {
		return
	}
	hooks.Run(ctx, hook.EventPostResponse, "", hook.Context{SessionID: sessionID, Output: output})
}
