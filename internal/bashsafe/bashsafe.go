// Package bashsafe classifies shell commands as read-only (auto-approvable)
// or not. Failure mode is asymmetric: a false "unsafe" only prompts the
// user; a false "safe" is a security hole, so every ambiguous case
// (unmatched quotes, unmatched parens, unparseable syntax, unknown
// commands, compound constructs) resolves to unsafe.
//
// Structure comes from a real bash grammar: the command is parsed with
// mvdan.cc/sh/v3/syntax and classification walks the tree — statements for
// the &&/||/;/| operators, CallExpr for env-assignment stripping and word
// extraction, CmdSubst/ProcSubst for recursive substitution checks, and
// Redirs for output redirection. A command the parser rejects is unsafe by
// definition.
package bashsafe

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// destructiveTokens are checked against every whitespace-delimited token in
// the raw command, case-insensitively, after stripping a path prefix and a
// Windows executable extension. Presence anywhere makes the command unsafe
// regardless of where it appears (inside a chain, a substitution, a pipe,
// even a quoted string) — a string-level safety net underneath the
// structural walk.
var destructiveTokens = map[string]bool{
	"rm":    true,
	"del":   true,
	"rmdir": true,
	"erase": true,
}

var shellInterpreters = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "fish": true, "csh": true,
	"tcsh": true, "ksh": true, "cmd": true, "cmd.exe": true,
	"powershell": true, "powershell.exe": true, "pwsh": true, "pwsh.exe": true,
}

var readOnlyCommands = map[string]bool{
	// listing
	"ls": true, "dir": true, "tree": true, "pwd": true, "realpath": true,
	"basename": true, "dirname": true,
	// reading
	"cat": true, "type": true, "head": true, "tail": true, "less": true,
	"more": true, "bat": true, "batcat": true,
	// file info
	"file": true, "stat": true, "wc": true, "du": true, "df": true,
	"md5sum": true, "sha256sum": true, "sha1sum": true,
	// search
	"find": true, "which": true, "where": true, "whereis": true,
	"locate": true, "grep": true, "rg": true, "ag": true, "fd": true,
	// text processing (read-only)
	"sort": true, "uniq": true, "cut": true, "tr": true, "awk": true,
	"sed": true, "jq": true, "yq": true, "xargs": true,
	// system info
	"echo": true, "printf": true, "env": true, "printenv": true,
	"uname": true, "hostname": true, "whoami": true, "id": true,
	"date": true, "uptime": true,
	// runtimes (version-check only, see isVersionCheckOnly)
	"node": true, "python": true, "python3": true, "ruby": true,
	"java": true, "rustc": true, "go": true, "dotnet": true,
	// package managers (subcommand checked separately)
	"git": true, "cargo": true, "npm": true, "npx": true, "yarn": true, "pnpm": true,
	// diff/compare
	"diff": true, "cmp": true, "comm": true,
	// process listing
	"ps": true, "top": true, "htop": true,
	// network info (read-only)
	"ping": true, "nslookup": true, "dig": true, "host": true,
	"curl": true, "wget": true,
	// archive listing
	"tar": true, "unzip": true, "zipinfo": true,
	// linting (no side effects)
	"shellcheck": true, "eslint": true, "prettier": true, "clippy": true,
}

var runtimeCommands = map[string]bool{
	"node": true, "python": true, "python3": true, "ruby": true,
	"java": true, "rustc": true, "go": true, "dotnet": true,
}

var safeGitSubcommands = map[string]bool{
	"status": true, "log": true, "diff": true, "show": true, "branch": true,
	"tag": true, "remote": true, "describe": true, "shortlog": true,
	"blame": true, "ls-files": true, "ls-tree": true, "rev-parse": true,
	"rev-list": true, "cat-file": true, "name-rev": true, "config": true,
	"reflog": true, "whatchanged": true, "grep": true,
}

var safeCargoSubcommands = map[string]bool{
	"check": true, "clippy": true, "build": true, "test": true,
	"bench": true, "doc": true, "tree": true, "metadata": true,
	"verify-project": true, "version": true, "search": true, "info": true,
	"locate-project": true,
}

var safeNpmSubcommands = map[string]bool{
	"run": true, "test": true, "start": true, "list": true, "ls": true,
	"info": true, "view": true, "outdated": true, "audit": true,
	"pack": true, "explain": true, "why": true, "version": true,
}

// IsSafe returns true only when command is provably read-only.
func IsSafe(command string) bool {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return true
	}

	if containsDestructiveKeyword(trimmed) {
		return false
	}
	// Backtick substitution nests by escaping rather than by bracketing;
	// it is rejected outright rather than resolved.
	if strings.Contains(trimmed, "`") {
		return false
	}

	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(trimmed), "")
	if err != nil {
		// Unmatched quote/paren or anything else the grammar rejects.
		return false
	}

	for _, stmt := range file.Stmts {
		if !stmtSafe(stmt) {
			return false
		}
	}
	return true
}

// stmtSafe classifies one statement: its redirections, its command node,
// and (through wordSafe) every substitution nested in its words.
func stmtSafe(stmt *syntax.Stmt) bool {
	for _, redir := range stmt.Redirs {
		if !redirSafe(redir) {
			return false
		}
	}

	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		return callSafe(cmd)

	case *syntax.BinaryCmd:
		switch cmd.Op {
		case syntax.AndStmt, syntax.OrStmt:
			return stmtSafe(cmd.X) && stmtSafe(cmd.Y)
		case syntax.Pipe, syntax.PipeAll:
			// The upstream side classifies normally; the downstream side
			// must additionally not be a shell interpreter, which would
			// execute whatever the upstream produced.
			return stmtSafe(cmd.X) && pipeTargetSafe(cmd.Y)
		}
		return false

	case *syntax.Subshell:
		for _, s := range cmd.Stmts {
			if !stmtSafe(s) {
				return false
			}
		}
		return true

	case *syntax.Block:
		for _, s := range cmd.Stmts {
			if !stmtSafe(s) {
				return false
			}
		}
		return true
	}

	// Loops, conditionals, function declarations, arithmetic commands:
	// too much room to hide a write.
	return false
}

// redirSafe permits only input-side redirections. Any form of output
// redirection (>, >>, >|, &>, >&, <>) forces approval.
func redirSafe(redir *syntax.Redirect) bool {
	switch redir.Op {
	case syntax.RdrIn, syntax.Hdoc, syntax.DashHdoc, syntax.WordHdoc:
		return true
	}
	return false
}

// pipeTargetSafe classifies the receiving end of a pipe: head-safe like any
// other call, and never an interpreter.
func pipeTargetSafe(stmt *syntax.Stmt) bool {
	if call, ok := stmt.Cmd.(*syntax.CallExpr); ok {
		if len(call.Args) > 0 {
			base := extractBaseCommand(wordText(call.Args[0]))
			if shellInterpreters[base] {
				return false
			}
		}
	}
	return stmtSafe(stmt)
}

// callSafe classifies a simple command. Leading VAR=value assignments are
// carried in call.Assigns, so the argument list is already stripped; the
// assignment values' substitutions still get checked.
func callSafe(call *syntax.CallExpr) bool {
	for _, assign := range call.Assigns {
		if assign.Value != nil && !wordSafe(assign.Value) {
			return false
		}
	}
	for _, word := range call.Args {
		if !wordSafe(word) {
			return false
		}
	}

	// A bare assignment ("FOO=bar") with no command following.
	if len(call.Args) == 0 {
		return true
	}

	head := call.Args[0]
	if !wordFullyLiteral(head) {
		// The command itself comes from a substitution or expansion:
		// whatever it resolves to at runtime is unknowable here.
		return false
	}

	baseCmd := extractBaseCommand(wordText(head))

	if baseCmd == "cd" {
		return true
	}

	if !readOnlyCommands[baseCmd] {
		return false
	}

	args := literalArgs(call.Args[1:])
	switch baseCmd {
	case "git":
		return isSafeGitSubcommand(args)
	case "cargo":
		return isSafeCargoSubcommand(args)
	case "npm", "npx", "yarn", "pnpm":
		return isSafeNpmSubcommand(args)
	}
	if runtimeCommands[baseCmd] {
		return isVersionCheckOnly(args)
	}
	return true
}

// wordSafe recursively validates every command and process substitution
// nested anywhere in word, including inside double quotes. A write-side
// process substitution (">(...)"), which hands the command a writable
// stream, is always unsafe.
func wordSafe(word *syntax.Word) bool {
	safe := true
	syntax.Walk(word, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.CmdSubst:
			for _, s := range n.Stmts {
				if !stmtSafe(s) {
					safe = false
				}
			}
		case *syntax.ProcSubst:
			if n.Op != syntax.CmdIn {
				safe = false
				return false
			}
			for _, s := range n.Stmts {
				if !stmtSafe(s) {
					safe = false
				}
			}
		}
		return safe
	})
	return safe
}

// wordFullyLiteral reports whether word consists only of literal and
// single-quoted parts — no expansions whose runtime value could differ.
func wordFullyLiteral(word *syntax.Word) bool {
	for _, part := range word.Parts {
		switch part.(type) {
		case *syntax.Lit, *syntax.SglQuoted:
		default:
			return false
		}
	}
	return true
}

// wordText renders a word's literal content; non-literal parts contribute
// nothing (they are validated separately by wordSafe).
func wordText(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if lit, ok := inner.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		}
	}
	return sb.String()
}

// literalArgs renders the literal text of each argument word, preserving
// positions so subcommand checks see the same shape the shell would.
func literalArgs(words []*syntax.Word) []string {
	args := make([]string, 0, len(words))
	for _, w := range words {
		args = append(args, wordText(w))
	}
	return args
}

func containsDestructiveKeyword(command string) bool {
	for _, token := range strings.Fields(command) {
		base := strings.ToLower(extractBaseCommand(token))
		base = strings.TrimSuffix(base, ".exe")
		base = strings.TrimSuffix(base, ".cmd")
		base = strings.TrimSuffix(base, ".bat")
		if destructiveTokens[base] {
			return true
		}
	}
	return false
}

func extractBaseCommand(word string) string {
	idx := strings.LastIndexAny(word, "/\\")
	if idx < 0 {
		return word
	}
	return word[idx+1:]
}

func isVersionCheckOnly(args []string) bool {
	if len(args) == 0 {
		return true
	}
	if len(args) == 1 {
		switch args[0] {
		case "--version", "-V", "-v", "version":
			return true
		}
	}
	return false
}

func isSafeGitSubcommand(args []string) bool {
	if len(args) == 0 {
		return false
	}
	return safeGitSubcommands[args[0]]
}

func isSafeCargoSubcommand(args []string) bool {
	if len(args) == 0 {
		return false
	}
	return safeCargoSubcommands[args[0]]
}

func isSafeNpmSubcommand(args []string) bool {
	if len(args) == 0 {
		return false
	}
	return safeNpmSubcommands[args[0]]
}
