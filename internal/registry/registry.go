// Package registry implements the component registry: agents,
// commands, skills and hooks loaded with Builtin -> User -> Project
// precedence (later scopes override earlier scopes by name), plus the
// memory hierarchy in memory.go.
//
// It generalizes internal/agent.Registry's builtin/custom precedence and
// internal/command.Executor's config/file loading to also cover skills
// (SKILL.md files with YAML frontmatter) and hooks.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/agentcore-ai/agentcore/internal/agent"
	"github.com/agentcore-ai/agentcore/internal/command"
	"github.com/agentcore-ai/agentcore/internal/hook"
	"github.com/agentcore-ai/agentcore/internal/permission"
	"github.com/agentcore-ai/agentcore/internal/promptdoc"
	"github.com/agentcore-ai/agentcore/pkg/types"
)

// SkillSource records which scope a skill was loaded from, for precedence
// reporting and `/skill list`-style output.
type SkillSource string

const (
	SkillSourceUser    SkillSource = "user"
	SkillSourceProject SkillSource = "project"
)

// Skill is a skill loaded from a SKILL.md file: name, description, allowed
// tools and, most importantly, whether it runs inline or forks a subagent.
type Skill struct {
	Name          string
	Description   string
	AllowedTools  []string
	UserInvocable bool
	Model         string
	// Context is "fork" for a skill that spawns a subagent instead of
	// running inline (see RunsInSubagent), or "" for inline skills.
	Context   string
	AgentType string
	Usage     string
	Prompt    string
	Path      string
	Source    SkillSource
}

// RunsInSubagent reports whether this skill's invocation should
// dispatch to the subagent spawner rather than expand inline.
func (s *Skill) RunsInSubagent() bool { return s.Context == "fork" }

// SubagentType returns the agent type a forked skill should spawn,
// defaulting to "general" (the built-in general-purpose
// subagent) when the skill frontmatter doesn't specify one.
func (s *Skill) SubagentType() string {
	if s.AgentType != "" {
		return s.AgentType
	}
	return "general"
}

// Registry composes the four component kinds the agent core resolves by
// name: agents, commands, skills and hooks.
type Registry struct {
	Agents   *agent.Registry
	Commands *command.Executor
	Hooks    *hook.Runner

	mu      sync.RWMutex
	skills  map[string]*Skill
	workDir string
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// New builds a Registry for workDir from cfg: agents and commands are
// loaded through their existing packages, skills are loaded from
// ~/.claude/skills (User) then workDir/.agentcore/skills (Project) with
// Project overriding User by name, and hooks come straight from
// cfg.Hooks.
func New(workDir string, cfg *types.Config) (*Registry, error) {
	agents := agent.NewRegistry()
	if cfg != nil && cfg.Agent != nil {
		agents.LoadFromConfig(convertAgentConfigs(cfg.Agent))
	}

	r := &Registry{
		Agents:   agents,
		Commands: command.NewExecutor(workDir, cfg),
		Hooks:    hook.NewRunner(hooksFromConfig(cfg)),
		skills:   make(map[string]*Skill),
		workDir:  workDir,
	}

	r.loadSkills()

	return r, nil
}

// convertAgentConfigs adapts the TOML-facing types.AgentConfig shape
// (string model refs, string permission actions) to agent.Registry's
// LoadFromConfig shape, so file-defined and config-defined agents share
// one loading path.
func convertAgentConfigs(in map[string]types.AgentConfig) map[string]agent.AgentConfig {
	out := make(map[string]agent.AgentConfig, len(in))
	for name, c := range in {
		out[name] = agent.AgentConfig{
			Description: c.Description,
			Mode:        agent.Mode(c.Mode),
			Model:       parseModelRef(c.Model),
			Prompt:      c.Prompt,
			Temperature: floatValue(c.Temperature),
			TopP:        floatValue(c.TopP),
			Color:       c.Color,
			MaxTurns:    c.MaxTurns,
			Tools:       c.Tools,
			Permission:  convertPermission(c.Permission),
		}
	}
	return out
}

func parseModelRef(model string) *agent.ModelRef {
	if model == "" {
		return nil
	}
	if idx := strings.IndexByte(model, '/'); idx >= 0 {
		return &agent.ModelRef{ProviderID: model[:idx], ModelID: model[idx+1:]}
	}
	return &agent.ModelRef{ModelID: model}
}

func floatValue(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func convertPermission(p *types.PermissionConfig) *agent.AgentPermissionConfig {
	if p == nil {
		return nil
	}
	out := &agent.AgentPermissionConfig{
		Edit:        permission.PermissionAction(p.Edit),
		WebFetch:    permission.PermissionAction(p.WebFetch),
		ExternalDir: permission.PermissionAction(p.ExternalDir),
		DoomLoop:    permission.PermissionAction(p.DoomLoop),
	}
	switch bash := p.Bash.(type) {
	case string:
		out.Bash = map[string]permission.PermissionAction{"*": permission.PermissionAction(bash)}
	case map[string]any:
		out.Bash = make(map[string]permission.PermissionAction, len(bash))
		for k, v := range bash {
			if s, ok := v.(string); ok {
				out.Bash[k] = permission.PermissionAction(s)
			}
		}
	case map[string]string:
		out.Bash = make(map[string]permission.PermissionAction, len(bash))
		for k, v := range bash {
			out.Bash[k] = permission.PermissionAction(v)
		}
	}
	return out
}

func hooksFromConfig(cfg *types.Config) []types.HookConfig {
	if cfg == nil {
		return nil
	}
	return cfg.Hooks
}

// loadSkills (re)populates the skill map: User tier first, Project tier
// second so that a project-local skill of the same name wins, matching
// Builtin < User < Project precedence (skills have no builtin
// definitions).
func (r *Registry) loadSkills() {
	skills := make(map[string]*Skill)

	if home, err := os.UserHomeDir(); err == nil {
		loadSkillDir(filepath.Join(home, ".claude", "skills"), SkillSourceUser, skills)
	}
	loadSkillDir(filepath.Join(r.workDir, ".agentcore", "skills"), SkillSourceProject, skills)

	r.mu.Lock()
	r.skills = skills
	r.mu.Unlock()
}

// loadSkillDir walks dir for <name>/SKILL.md files, parsing each with
// promptdoc and merging the result into skills (overwriting by name).
func loadSkillDir(dir string, source SkillSource, skills map[string]*Skill) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillPath := filepath.Join(dir, entry.Name(), "SKILL.md")
		content, err := os.ReadFile(skillPath)
		if err != nil {
			continue
		}

		doc, err := promptdoc.Parse(string(content))
		if err != nil {
			log.Warn().Err(err).Str("path", skillPath).Msg("registry: invalid SKILL.md frontmatter")
			continue
		}

		name, _ := doc.Frontmatter["name"].(string)
		if name == "" {
			name = entry.Name()
		}

		skills[name] = &Skill{
			Name:          name,
			Description:   stringField(doc.Frontmatter, "description"),
			AllowedTools:  stringListField(doc.Frontmatter, "allowed-tools"),
			UserInvocable: boolField(doc.Frontmatter, "user-invocable", true),
			Model:         stringField(doc.Frontmatter, "model"),
			Context:       stringField(doc.Frontmatter, "context"),
			AgentType:     stringField(doc.Frontmatter, "agent"),
			Usage:         stringField(doc.Frontmatter, "usage"),
			Prompt:        doc.Body,
			Path:          skillPath,
			Source:        source,
		}
	}
}

func stringField(fm map[string]any, key string) string {
	if v, ok := fm[key].(string); ok {
		return v
	}
	return ""
}

func boolField(fm map[string]any, key string, def bool) bool {
	if v, ok := fm[key].(bool); ok {
		return v
	}
	return def
}

func stringListField(fm map[string]any, key string) []string {
	switch v := fm[key].(type) {
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// GetSkill returns the named skill, if any.
func (r *Registry) GetSkill(name string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// ListSkillNames returns all known skill names.
func (r *Registry) ListSkillNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	return names
}

// GetHooks returns the hook runner.
func (r *Registry) GetHooks() *hook.Runner { return r.Hooks }

// Memory returns the composed four-tier memory hierarchy for the
// registry's work directory, including config Instructions in the User
// tier.
func (r *Registry) Memory(instructions []string) string {
	return BuildMemory(r.workDir, instructions)
}

// Watch starts an fsnotify watch over the project command/skill
// directories and reloads skills whenever they change, matching the
// same fsnotify idiom internal/vcs.Watcher uses. The returned stop function closes
// the watcher; callers should invoke it on shutdown.
func (r *Registry) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("registry: create watcher: %w", err)
	}

	dirs := []string{
		filepath.Join(r.workDir, ".agentcore", "skills"),
		filepath.Join(r.workDir, ".agentcore", "command"),
	}
	watched := false
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			continue
		}
		if err := w.Add(dir); err == nil {
			watched = true
		}
	}
	if !watched {
		w.Close()
		return func() {}, nil
	}

	r.stopCh = make(chan struct{})
	r.watcher = w

	go func() {
		for {
			select {
			case <-r.stopCh:
				return
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				r.loadSkills()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("registry: watcher error")
			}
		}
	}()

	return func() {
		close(r.stopCh)
		w.Close()
	}, nil
}
