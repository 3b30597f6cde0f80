// Package agentloop is the single entry point for running the agentic
// turn-taking loop, whether for a top-level session
// (internal/session.Processor.Process) or a spawned subagent
// (internal/subagent.Spawner.Spawn). It owns the one piece of policy that
// must be applied identically to both: the max-steps ceiling. Per-tool
// approval — including the bash-safety auto-approve check consulted ahead
// of the shared approval gate — happens inside internal/session's tool
// execution path (internal/session/tools.go's checkToolPermission), which
// both entry points below funnel through.
package agentloop

import (
	"context"
	"fmt"

	"github.com/agentcore-ai/agentcore/internal/permission"
	"github.com/agentcore-ai/agentcore/internal/provider"
	"github.com/agentcore-ai/agentcore/internal/session"
	"github.com/agentcore-ai/agentcore/internal/storage"
	"github.com/agentcore-ai/agentcore/internal/subagent"
	"github.com/agentcore-ai/agentcore/internal/tool"
)

// DefaultMaxSteps is used whenever neither the agent definition nor a
// caller-supplied override specifies one.
const DefaultMaxSteps = session.MaxSteps

// ResolveMaxSteps picks a top-level session's step budget: an explicit
// override wins, then the agent's own MaxSteps, then DefaultMaxSteps.
// RunTopLevel is its caller. Subagents do not pass through it:
// internal/subagent.convertToSessionAgent takes the agent's MaxTurns, or
// session.MaxSteps when that is unset, and has no override.
func ResolveMaxSteps(agentMaxSteps, override int) int {
	if override > 0 {
		return override
	}
	if agentMaxSteps > 0 {
		return agentMaxSteps
	}
	return DefaultMaxSteps
}

// Runner is the shared façade over both loop entry points, holding the
// dependencies a top-level session and every subagent it spawns have in
// common: storage, providers, tools, and — critically — one
// permission.Checker, so approvals from a subagent serialize through the
// same gate as its parent.
type Runner struct {
	Processor *session.Processor
	Spawner   *subagent.Spawner
	Checker   *permission.Checker
}

// New builds a Runner from an existing permission.Checker, sharing it (and
// therefore its approval.Gate) between the top-level processor and the
// subagent spawner. Callers that need the checker for other purposes (e.g.
// wrapping it for an auto-approve front-end) should construct it with
// permission.NewChecker() and pass the same instance here.
func New(checker *permission.Checker, store *storage.Storage, providerReg *provider.Registry, toolReg *tool.Registry, spawnerCfg subagent.Config, defaultProviderID, defaultModelID string) *Runner {
	spawnerCfg.Storage = store
	spawnerCfg.ProviderRegistry = providerReg
	spawnerCfg.ToolRegistry = toolReg
	spawnerCfg.PermissionChecker = checker

	return &Runner{
		Processor: session.NewProcessor(providerReg, toolReg, store, checker, defaultProviderID, defaultModelID),
		Spawner:   subagent.New(spawnerCfg),
		Checker:   checker,
	}
}

// RunTopLevel runs the loop for a user-facing session. maxStepsOverride, if
// > 0, takes precedence over ag.MaxSteps (e.g. a `/command` that pins a
// tighter budget); 0 defers to the agent's own setting.
func (r *Runner) RunTopLevel(ctx context.Context, sessionID string, ag *session.Agent, maxStepsOverride int, callback session.ProcessCallback) error {
	if ag == nil {
		ag = session.DefaultAgent()
	}
	ag.MaxSteps = ResolveMaxSteps(ag.MaxSteps, maxStepsOverride)
	return r.Processor.Process(ctx, sessionID, ag, callback)
}

// RunSubagent spawns and runs a subtask through the shared Spawner. The
// subagent's step budget is set by the Spawner (see
// internal/subagent.convertToSessionAgent), not by ResolveMaxSteps.
func (r *Runner) RunSubagent(ctx context.Context, parentSessionID string, opts subagent.SpawnOptions) (*tool.TaskResult, error) {
	result, err := r.Spawner.Spawn(ctx, parentSessionID, opts)
	if err != nil {
		return nil, fmt.Errorf("agentloop: subagent %s: %w", opts.AgentName, err)
	}
	return result, nil
}
