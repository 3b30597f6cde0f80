package promptdoc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// DefaultShellTimeout is used by ExpandShell when the caller supplies none.
const DefaultShellTimeout = 5 * time.Second

// maxShellOutput truncates long command substitutions.
const maxShellOutput = 100_000

var shellSubstPattern = regexp.MustCompile("!`([^`]*)`")

// ExpandShell scans body for `` !`cmd` `` occurrences and replaces each with
// the trimmed stdout of running cmd through the system shell, `[ERROR: msg]`
// on non-zero exit, or `[TIMEOUT after Xs]` if it exceeds timeout. Output
// longer than 100,000 characters is truncated with an ellipsis.
func ExpandShell(ctx context.Context, body string, timeout time.Duration) string {
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}
	return shellSubstPattern.ReplaceAllStringFunc(body, func(match string) string {
		sub := shellSubstPattern.FindStringSubmatch(match)
		if len(sub) != 2 {
			return match
		}
		cmd := sub[1]
		return runShellSubstitution(ctx, cmd, timeout)
	})
}

func runShellSubstitution(ctx context.Context, command string, timeout time.Duration) string {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	output, err := cmd.Output()

	if runCtx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("[TIMEOUT after %ds]", int(timeout.Seconds()))
	}
	if err != nil {
		return fmt.Sprintf("[ERROR: %s]", err.Error())
	}

	result := strings.TrimSpace(string(output))
	if len(result) > maxShellOutput {
		result = result[:maxShellOutput] + "..."
	}
	return result
}

var (
	argumentsPattern = regexp.MustCompile(`\$\{?ARGUMENTS\}?`)
	indexedArgPattern = regexp.MustCompile(`\$(\d+)|\$\{ARGUMENTS\[(\d+)\]\}`)
)

// ExpandArguments replaces $ARGUMENTS/${ARGUMENTS} with the full argument
// string, and $N / ${ARGUMENTS[N]} with the N-th whitespace-separated
// token of args (empty string if out of range).
func ExpandArguments(body, args string) string {
	tokens := strings.Fields(args)

	body = indexedArgPattern.ReplaceAllStringFunc(body, func(match string) string {
		sub := indexedArgPattern.FindStringSubmatch(match)
		idxStr := sub[1]
		if idxStr == "" {
			idxStr = sub[2]
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 1 || idx > len(tokens) {
			return ""
		}
		return tokens[idx-1]
	})

	body = argumentsPattern.ReplaceAllString(body, args)
	return body
}

// TemplateVars is the set of caller-supplied values substituted for
// `${VAR_NAME}`-style template variables in a system prompt or command body.
type TemplateVars struct {
	WorkingDirectory string
	IsGitRepo        bool
	Platform         string
	OSVersion        string
	CurrentDate      string
	CurrentYear      string
	ModelInfo        string
	GitStatus        string
	AssistantName    string
	SecurityPolicy   string
	CurrentBranch    string
	MainBranch       string
	RecentCommits    string
}

// DefaultTemplateVars fills the environment-derived fields for workDir:
// platform, current date, git branch/status when workDir is a repository.
// Fields with no ambient source (SECURITY_POLICY, RECENT_COMMITS) are left
// empty for the caller to override.
func DefaultTemplateVars(workDir, modelInfo string) TemplateVars {
	now := time.Now()
	vars := TemplateVars{
		WorkingDirectory: workDir,
		Platform:         runtime.GOOS,
		OSVersion:        runtime.GOOS + "/" + runtime.GOARCH,
		CurrentDate:      now.Format("2006-01-02"),
		CurrentYear:      now.Format("2006"),
		ModelInfo:        modelInfo,
		AssistantName:    "AgentCore",
	}
	if workDir != "" {
		if _, err := os.Stat(filepath.Join(workDir, ".git")); err == nil {
			vars.IsGitRepo = true
			vars.CurrentBranch = gitOutput(workDir, "branch", "--show-current")
			vars.GitStatus = gitOutput(workDir, "status", "--short")
			vars.MainBranch = detectMainBranch(workDir)
		}
	}
	return vars
}

func gitOutput(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func detectMainBranch(dir string) string {
	for _, b := range []string{"main", "master"} {
		if gitOutput(dir, "rev-parse", "--verify", "--quiet", b) != "" {
			return b
		}
	}
	return ""
}

// ExpandTemplateVars replaces each `${NAME}` placeholder in body with the
// corresponding field of vars. Unknown placeholders are left untouched.
func ExpandTemplateVars(body string, vars TemplateVars) string {
	isGitRepo := "false"
	if vars.IsGitRepo {
		isGitRepo = "true"
	}
	replacements := map[string]string{
		"WORKING_DIRECTORY": vars.WorkingDirectory,
		"IS_GIT_REPO":        isGitRepo,
		"PLATFORM":           vars.Platform,
		"OS_VERSION":         vars.OSVersion,
		"CURRENT_DATE":       vars.CurrentDate,
		"CURRENT_YEAR":       vars.CurrentYear,
		"MODEL_INFO":         vars.ModelInfo,
		"GIT_STATUS":         vars.GitStatus,
		"ASSISTANT_NAME":     vars.AssistantName,
		"SECURITY_POLICY":    vars.SecurityPolicy,
		"CURRENT_BRANCH":     vars.CurrentBranch,
		"MAIN_BRANCH":        vars.MainBranch,
		"RECENT_COMMITS":     vars.RecentCommits,
	}
	for name, value := range replacements {
		body = strings.ReplaceAll(body, "${"+name+"}", value)
	}
	return body
}
