// Package resolve implements the skill/command resolver: given a
// front-end string `/name args`, it looks the name up in the component
// registry and produces either a prompt-template expansion (command, or a
// skill that runs inline) or a subagent-spawn instruction (a skill with
// `context: fork`).
package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/agentcore-ai/agentcore/internal/command"
	"github.com/agentcore-ai/agentcore/internal/promptdoc"
	"github.com/agentcore-ai/agentcore/internal/registry"
)

// Kind identifies what a `/name` resolved to.
type Kind int

const (
	KindCommand Kind = iota
	KindSkill
)

// Resolution is the outcome of resolving a `/name args` line.
type Resolution struct {
	Kind Kind
	Name string

	// Prompt is the fully expanded prompt (argument + shell substitution
	// applied), ready to inject as a user message.
	Prompt string

	Agent   string
	Model   string
	Subtask bool

	// RunsInSubagent is true for a skill with `context: fork` - the agent
	// loop should hand off to the subagent spawner instead of injecting
	// the prompt inline.
	RunsInSubagent bool
	SubagentType   string
	AllowedTools   []string
}

// ErrNotFound is returned when name matches neither a command nor a skill.
// Suggestion, if non-empty, names the closest known name by Levenshtein
// distance.
type ErrNotFound struct {
	Name       string
	Suggestion string
}

func (e *ErrNotFound) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown command or skill: %q (did you mean %q?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown command or skill: %q", e.Name)
}

// Resolver resolves `/name args` lines against a component registry.
type Resolver struct {
	reg *registry.Registry
}

// New creates a Resolver bound to reg.
func New(reg *registry.Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Resolve parses a leading-slash line ("/review fix the bug") and expands
// the matching command or skill template. Callers should only invoke this
// when the user turn begins with "/".
func (r *Resolver) Resolve(ctx context.Context, line string) (*Resolution, error) {
	line = strings.TrimPrefix(strings.TrimSpace(line), "/")
	name, args, _ := strings.Cut(line, " ")
	if name == "" {
		return nil, &ErrNotFound{Name: line}
	}

	if cmd, ok := r.reg.Commands.Get(name); ok {
		return r.resolveCommand(ctx, cmd, args)
	}

	if skill, ok := r.reg.GetSkill(name); ok {
		return r.resolveSkill(ctx, skill, args)
	}

	return nil, &ErrNotFound{Name: name, Suggestion: r.suggest(name)}
}

func (r *Resolver) resolveCommand(ctx context.Context, cmd *command.Command, args string) (*Resolution, error) {
	result, err := r.reg.Commands.Execute(ctx, cmd.Name, args)
	if err != nil {
		return nil, fmt.Errorf("resolve: command %q: %w", cmd.Name, err)
	}

	prompt := promptdoc.ExpandShell(ctx, result.Prompt, 0)

	return &Resolution{
		Kind:    KindCommand,
		Name:    cmd.Name,
		Prompt:  prompt,
		Agent:   result.Agent,
		Model:   result.Model,
		Subtask: result.Subtask,
	}, nil
}

func (r *Resolver) resolveSkill(ctx context.Context, skill *registry.Skill, args string) (*Resolution, error) {
	prompt := promptdoc.ExpandArguments(skill.Prompt, args)
	prompt = promptdoc.ExpandShell(ctx, prompt, 0)

	return &Resolution{
		Kind:           KindSkill,
		Name:           skill.Name,
		Prompt:         prompt,
		Model:          skill.Model,
		RunsInSubagent: skill.RunsInSubagent(),
		SubagentType:   skill.SubagentType(),
		AllowedTools:   skill.AllowedTools,
	}, nil
}

// suggest returns the known command/skill name closest to name by
// Levenshtein distance, or "" if nothing is reasonably close.
func (r *Resolver) suggest(name string) string {
	var names []string
	for _, c := range r.reg.Commands.List() {
		names = append(names, c.Name)
	}
	names = append(names, r.reg.ListSkillNames()...)
	sort.Strings(names)

	best := ""
	bestDist := -1
	for _, candidate := range names {
		dist := levenshtein.ComputeDistance(name, candidate)
		if bestDist == -1 || dist < bestDist {
			best = candidate
			bestDist = dist
		}
	}

	maxLen := len(name)
	if l := len(best); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 || bestDist > (maxLen+1)/2 {
		return ""
	}
	return best
}
