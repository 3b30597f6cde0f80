// Package sandbox defines the resource/filesystem/network constraints
// applied around tool execution (bash commands and other subprocess-
// spawning tools). It mirrors the approval gate's asymmetric-failure
// posture: a policy that is too permissive is a security hole, so presets
// default toward restriction and callers opt into more access explicitly.
package sandbox

import "path/filepath"

// Level names a preset security posture, from most to least restrictive.
type Level string

const (
	Paranoid   Level = "paranoid"
	Strict     Level = "strict"
	Standard   Level = "standard"
	Relaxed    Level = "relaxed"
	Permissive Level = "permissive"
)

// NetworkPolicy controls outbound network access for a sandboxed process.
type NetworkPolicy struct {
	Enabled      bool
	AllowedHosts map[string]bool
	BlockedHosts map[string]bool
}

// DenyAllNetwork blocks every outbound connection.
func DenyAllNetwork() NetworkPolicy {
	return NetworkPolicy{Enabled: false, AllowedHosts: map[string]bool{}, BlockedHosts: map[string]bool{}}
}

// AllowAllNetwork permits any outbound connection.
func AllowAllNetwork() NetworkPolicy {
	return NetworkPolicy{Enabled: true, AllowedHosts: map[string]bool{}, BlockedHosts: map[string]bool{}}
}

// Allowed reports whether a connection to host is permitted by the policy.
func (p NetworkPolicy) Allowed(host string) bool {
	if !p.Enabled {
		return false
	}
	if p.BlockedHosts[host] {
		return false
	}
	if len(p.AllowedHosts) == 0 {
		return true
	}
	return p.AllowedHosts[host]
}

// FilesystemPolicy controls which paths a sandboxed process may read,
// write, or execute from. An empty ReadPaths/ExecPaths set means
// "anywhere not explicitly blocked" — used by the looser presets.
type FilesystemPolicy struct {
	ReadPaths    map[string]bool
	WritePaths   map[string]bool
	ExecPaths    map[string]bool
	BlockedPaths map[string]bool
}

// CanRead reports whether path is readable under this policy.
func (p FilesystemPolicy) CanRead(path string) bool {
	return p.permits(path, p.ReadPaths)
}

// CanWrite reports whether path is writable under this policy.
func (p FilesystemPolicy) CanWrite(path string) bool {
	return p.permits(path, p.WritePaths)
}

// CanExec reports whether a binary under path may be executed.
func (p FilesystemPolicy) CanExec(path string) bool {
	return p.permits(path, p.ExecPaths)
}

func (p FilesystemPolicy) permits(path string, allowed map[string]bool) bool {
	for blocked := range p.BlockedPaths {
		if withinPath(blocked, path) {
			return false
		}
	}
	if len(allowed) == 0 {
		return true
	}
	for root := range allowed {
		if withinPath(root, path) {
			return true
		}
	}
	return false
}

func withinPath(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel == "." || (len(rel) > 0 && rel[0] != '.' && !filepath.IsAbs(rel))
}

// ResourceLimits bounds what a sandboxed process may consume.
type ResourceLimits struct {
	MaxMemoryBytes int64
	MaxCPUSeconds  int
	MaxProcesses   int
	MaxFDs         int
	MaxFileBytes   int64
}

// DefaultResourceLimits matches the Standard preset's limits, used as the
// zero-value fallback for custom configs that don't override limits.
var DefaultResourceLimits = ResourceLimits{
	MaxMemoryBytes: 512 * 1024 * 1024,
	MaxCPUSeconds:  60,
	MaxProcesses:   10,
	MaxFDs:         100,
	MaxFileBytes:   100 * 1024 * 1024,
}

// Config is the fully-resolved sandbox policy for one tool invocation.
type Config struct {
	Root       string
	Network    NetworkPolicy
	Filesystem FilesystemPolicy
	Limits     ResourceLimits
}

// ForLevel builds the Config for a preset security level rooted at root.
func ForLevel(level Level, root string) Config {
	switch level {
	case Paranoid:
		return paranoidConfig(root)
	case Strict:
		return strictConfig(root)
	case Relaxed:
		return relaxedConfig(root)
	case Permissive:
		return permissiveConfig(root)
	default:
		return standardConfig(root)
	}
}

func paranoidConfig(root string) Config {
	return Config{
		Root:    root,
		Network: DenyAllNetwork(),
		Filesystem: FilesystemPolicy{
			ReadPaths:    set(root),
			WritePaths:   map[string]bool{},
			ExecPaths:    map[string]bool{},
			BlockedPaths: defaultBlockedPaths(),
		},
		Limits: ResourceLimits{
			MaxMemoryBytes: 128 * 1024 * 1024,
			MaxCPUSeconds:  10,
			MaxProcesses:   1,
			MaxFDs:         20,
			MaxFileBytes:   10 * 1024 * 1024,
		},
	}
}

func strictConfig(root string) Config {
	return Config{
		Root:    root,
		Network: DenyAllNetwork(),
		Filesystem: FilesystemPolicy{
			ReadPaths:    set(root, "/usr"),
			WritePaths:   set(root),
			ExecPaths:    set("/usr/bin", "/bin"),
			BlockedPaths: defaultBlockedPaths(),
		},
		Limits: ResourceLimits{
			MaxMemoryBytes: 256 * 1024 * 1024,
			MaxCPUSeconds:  30,
			MaxProcesses:   5,
			MaxFDs:         50,
			MaxFileBytes:   50 * 1024 * 1024,
		},
	}
}

func standardConfig(root string) Config {
	return Config{
		Root: root,
		Network: NetworkPolicy{
			Enabled:      true,
			AllowedHosts: map[string]bool{},
			BlockedHosts: set("localhost", "127.0.0.1", "0.0.0.0"),
		},
		Filesystem: FilesystemPolicy{
			ReadPaths:    set(root, "/usr", "/lib"),
			WritePaths:   set(root),
			ExecPaths:    set("/usr/bin", "/bin", "/usr/local/bin"),
			BlockedPaths: defaultBlockedPaths(),
		},
		Limits: DefaultResourceLimits,
	}
}

func relaxedConfig(root string) Config {
	return Config{
		Root:    root,
		Network: AllowAllNetwork(),
		Filesystem: FilesystemPolicy{
			ReadPaths:    map[string]bool{},
			WritePaths:   set(root),
			ExecPaths:    map[string]bool{},
			BlockedPaths: defaultBlockedPaths(),
		},
		Limits: ResourceLimits{
			MaxMemoryBytes: 1024 * 1024 * 1024,
			MaxCPUSeconds:  300,
			MaxProcesses:   50,
			MaxFDs:         500,
			MaxFileBytes:   500 * 1024 * 1024,
		},
	}
}

func permissiveConfig(root string) Config {
	return Config{
		Root:    root,
		Network: AllowAllNetwork(),
		Filesystem: FilesystemPolicy{
			ReadPaths:    map[string]bool{},
			WritePaths:   map[string]bool{},
			ExecPaths:    map[string]bool{},
			BlockedPaths: minimalBlockedPaths(),
		},
		Limits: ResourceLimits{
			MaxMemoryBytes: 4 * 1024 * 1024 * 1024,
			MaxCPUSeconds:  3600,
			MaxProcesses:   100,
			MaxFDs:         1000,
			MaxFileBytes:   1024 * 1024 * 1024,
		},
	}
}

func defaultBlockedPaths() map[string]bool {
	return set("/etc/passwd", "/etc/shadow", "/etc/sudoers", "/root", "/home", "/var/log", "/proc", "/sys", "/dev")
}

func minimalBlockedPaths() map[string]bool {
	return set("/etc/shadow", "/etc/sudoers")
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, item := range items {
		m[item] = true
	}
	return m
}

// Builder composes a custom Config starting from a preset base.
type Builder struct {
	root       string
	base       Level
	network    *NetworkPolicy
	filesystem *FilesystemPolicy
	limits     *ResourceLimits
}

// NewBuilder starts a custom policy rooted at root, defaulting to Standard.
func NewBuilder(root string) *Builder {
	return &Builder{root: root, base: Standard}
}

// BaseLevel sets the preset the builder starts from.
func (b *Builder) BaseLevel(level Level) *Builder {
	b.base = level
	return b
}

// WithNetwork overrides the resolved network policy.
func (b *Builder) WithNetwork(policy NetworkPolicy) *Builder {
	b.network = &policy
	return b
}

// WithFilesystem overrides the resolved filesystem policy.
func (b *Builder) WithFilesystem(policy FilesystemPolicy) *Builder {
	b.filesystem = &policy
	return b
}

// WithLimits overrides the resolved resource limits.
func (b *Builder) WithLimits(limits ResourceLimits) *Builder {
	b.limits = &limits
	return b
}

// Build resolves the final Config.
func (b *Builder) Build() Config {
	cfg := ForLevel(b.base, b.root)
	if b.network != nil {
		cfg.Network = *b.network
	}
	if b.filesystem != nil {
		cfg.Filesystem = *b.filesystem
	}
	if b.limits != nil {
		cfg.Limits = *b.limits
	}
	return cfg
}
