package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MemoryTier identifies one of the four priority bands memory files are
// gathered from. Tiers are composed highest-priority first, matching
// strict Enterprise -> Project -> Rules -> User tier ordering.
type MemoryTier int

const (
	TierEnterprise MemoryTier = iota
	TierProject
	TierRules
	TierUser
)

func (t MemoryTier) String() string {
	switch t {
	case TierEnterprise:
		return "Enterprise"
	case TierProject:
		return "Project"
	case TierRules:
		return "Rules"
	case TierUser:
		return "User"
	default:
		return "Unknown"
	}
}

// memoryFile is one resolved, non-empty memory file.
type memoryFile struct {
	tier MemoryTier
	path string
	body string
}

// enterprisePaths returns the admin-managed, highest-priority memory
// locations.
func enterprisePaths() []string {
	return []string{
		"/etc/agentcore/AGENTS.md",
		"/etc/agentcore/CLAUDE.md",
	}
}

// projectPaths returns project-root memory files checked in the work
// directory.
func projectPaths(workDir string) []string {
	return []string{
		filepath.Join(workDir, "AGENTS.md"),
		filepath.Join(workDir, "CLAUDE.md"),
		filepath.Join(workDir, ".agentcore", "rules.md"),
	}
}

// rulesGlob returns the glob pattern for the Rules tier: every file matches
// (not just the first), sorted lexically, each rendered under its own
// subheader.
func rulesGlob(workDir string) string {
	return filepath.Join(workDir, ".agentcore", "rules", "*.md")
}

// userPaths returns home-directory and local-override memory files, the
// lowest-priority tier.
func userPaths(workDir string) []string {
	paths := []string{filepath.Join(workDir, "AGENTS.local.md")}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "agentcore", "rules.md"),
			filepath.Join(home, ".claude", "rules.md"),
		)
	}
	return paths
}

// firstMatch returns the content of the first readable, non-empty file in
// paths, or "" if none exist.
func firstMatch(paths []string) (path, body string) {
	for _, p := range paths {
		if content, err := os.ReadFile(p); err == nil && len(content) > 0 {
			return p, string(content)
		}
	}
	return "", ""
}

// BuildMemory composes the four-tier memory hierarchy for workDir, plus any
// extra instruction files supplied by config (appended to the User tier, as
// `types.Config.Instructions` documents). It returns "" if no tier produced
// any content.
func BuildMemory(workDir string, extraInstructions []string) string {
	var files []memoryFile

	if p, b := firstMatch(enterprisePaths()); p != "" {
		files = append(files, memoryFile{TierEnterprise, p, b})
	}
	if p, b := firstMatch(projectPaths(workDir)); p != "" {
		files = append(files, memoryFile{TierProject, p, b})
	}

	if matches, err := filepath.Glob(rulesGlob(workDir)); err == nil {
		sort.Strings(matches)
		for _, m := range matches {
			if content, err := os.ReadFile(m); err == nil && len(content) > 0 {
				files = append(files, memoryFile{TierRules, m, string(content)})
			}
		}
	}

	if p, b := firstMatch(userPaths(workDir)); p != "" {
		files = append(files, memoryFile{TierUser, p, b})
	}
	for _, instr := range extraInstructions {
		path := instr
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}
		if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
			files = append(files, memoryFile{TierUser, path, string(content)})
		}
	}

	if len(files) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("# Custom Rules\n")

	currentTier := MemoryTier(-1)
	for _, f := range files {
		if f.tier != currentTier {
			currentTier = f.tier
			sb.WriteString(fmt.Sprintf("\n## %s Memory\n", currentTier))
		}
		if currentTier == TierRules {
			sb.WriteString(fmt.Sprintf("\n### %s\n\n%s\n", filepath.Base(f.path), strings.TrimRight(f.body, "\n")))
		} else {
			sb.WriteString(fmt.Sprintf("\n%s\n", strings.TrimRight(f.body, "\n")))
		}
	}

	return sb.String()
}
