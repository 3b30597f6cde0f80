package types

// Config represents the agent core's on-disk TOML configuration.
type Config struct {
	Username string `toml:"username,omitempty" json:"username,omitempty"`

	// Model selection
	Model      string `toml:"model,omitempty" json:"model,omitempty"`             // "anthropic/claude-sonnet-4"
	SmallModel string `toml:"small_model,omitempty" json:"small_model,omitempty"` // for fast/cheap tasks

	// Sharing behavior
	Share string `toml:"share,omitempty" json:"share,omitempty"` // "manual"|"auto"|"disabled"

	// Global tool enable/disable
	Tools map[string]bool `toml:"tools,omitempty" json:"tools,omitempty"`

	// Additional instruction files, appended to the memory hierarchy's User tier
	Instructions []string `toml:"instructions,omitempty" json:"instructions,omitempty"`

	// Template variables available to every prompt substitution
	PromptVariables map[string]string `toml:"prompt_variables,omitempty" json:"promptVariables,omitempty"`

	Provider map[string]ProviderConfig `toml:"provider,omitempty" json:"provider,omitempty"`
	Agent    map[string]AgentConfig    `toml:"agent,omitempty" json:"agent,omitempty"`
	Command  map[string]CommandConfig  `toml:"command,omitempty" json:"command,omitempty"`

	Permission *PermissionConfig `toml:"permission,omitempty" json:"permission,omitempty"`

	MCP map[string]MCPConfig `toml:"mcp,omitempty" json:"mcp,omitempty"`
	LSP *LSPConfig           `toml:"lsp,omitempty" json:"lsp,omitempty"`

	Formatter map[string]FormatterConfig `toml:"formatter,omitempty" json:"formatter,omitempty"`
	Watcher   *WatcherConfig             `toml:"watcher,omitempty" json:"watcher,omitempty"`

	// Sandbox preset name: "paranoid"|"strict"|"standard"|"relaxed"|"permissive"
	Sandbox string `toml:"sandbox,omitempty" json:"sandbox,omitempty"`

	Hooks []HookConfig `toml:"hook,omitempty" json:"hooks,omitempty"`

	// Keybinds maps action names to key chords for front-ends; unset
	// actions fall back to DefaultKeybinds.
	Keybinds map[string]string `toml:"keybinds,omitempty" json:"keybinds,omitempty"`

	Experimental *ExperimentalConfig `toml:"experimental,omitempty" json:"experimental,omitempty"`
}

// DefaultKeybinds returns the built-in keybind set front-ends start from.
func DefaultKeybinds() map[string]string {
	return map[string]string{
		"submit":         "enter",
		"newline":        "shift+enter",
		"cancel":         "esc",
		"quit":           "ctrl+c",
		"clear":          "ctrl+l",
		"history_up":     "up",
		"history_down":   "down",
		"scroll_up":      "pgup",
		"scroll_down":    "pgdn",
		"toggle_help":    "ctrl+h",
		"switch_session": "ctrl+s",
	}
}

// MergeKeybinds overlays user keybinds onto the defaults; the user's
// binding wins for any action defined in both.
func MergeKeybinds(base, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// HookConfig binds a subprocess command to a lifecycle event.
type HookConfig struct {
	Event string `toml:"event" json:"event"` // "pre_tool"|"post_tool"|"pre_prompt"|"post_response"

	Command []string `toml:"command" json:"command"`

	// Matcher restricts pre_tool/post_tool hooks to tool names matching this
	// glob; empty matches every tool.
	Matcher string `toml:"matcher,omitempty" json:"matcher,omitempty"`

	// Timeout in seconds; 0 uses the hook runner's default.
	Timeout int `toml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ProviderConfig holds configuration for a specific LLM provider.
type ProviderConfig struct {
	APIKey  string `toml:"api_key,omitempty" json:"apiKey,omitempty"`
	BaseURL string `toml:"base_url,omitempty" json:"baseURL,omitempty"`

	// Model/endpoint id, for providers (e.g. ARK) that require one up front.
	Model string `toml:"model,omitempty" json:"model,omitempty"`

	// Npm identifies the underlying SDK package backing this provider
	// (e.g. "@ai-sdk/anthropic"); used to resolve a provider implementation
	// when the provider name itself isn't one of the well-known built-ins.
	Npm string `toml:"npm,omitempty" json:"npm,omitempty"`

	Options *ProviderOptions `toml:"options,omitempty" json:"options,omitempty"`

	Whitelist []string `toml:"whitelist,omitempty" json:"whitelist,omitempty"`
	Blacklist []string `toml:"blacklist,omitempty" json:"blacklist,omitempty"`

	Disable bool `toml:"disable,omitempty" json:"disable,omitempty"`
}

// ProviderOptions holds nested provider options.
type ProviderOptions struct {
	APIKey        string `toml:"api_key,omitempty" json:"apiKey,omitempty"`
	BaseURL       string `toml:"base_url,omitempty" json:"baseURL,omitempty"`
	EnterpriseURL string `toml:"enterprise_url,omitempty" json:"enterpriseUrl,omitempty"`
	Timeout       *int   `toml:"timeout,omitempty" json:"timeout,omitempty"` // ms; nil = default, 0 = disabled
}

// AgentConfig holds configuration overrides for a named agent definition.
type AgentConfig struct {
	Model string `toml:"model,omitempty" json:"model,omitempty"`

	Temperature *float64 `toml:"temperature,omitempty" json:"temperature,omitempty"`
	TopP        *float64 `toml:"top_p,omitempty" json:"top_p,omitempty"`

	Prompt string `toml:"prompt,omitempty" json:"prompt,omitempty"`

	Tools map[string]bool `toml:"tools,omitempty" json:"tools,omitempty"`

	Permission *PermissionConfig `toml:"permission,omitempty" json:"permission,omitempty"`

	Description string `toml:"description,omitempty" json:"description,omitempty"`
	Mode        string `toml:"mode,omitempty" json:"mode,omitempty"` // "subagent"|"primary"|"all"
	Color       string `toml:"color,omitempty" json:"color,omitempty"`

	// MaxTurns caps the agent loop's turn budget; 0 means "use the session default".
	MaxTurns int `toml:"max_turns,omitempty" json:"maxTurns,omitempty"`

	Disable bool `toml:"disable,omitempty" json:"disable,omitempty"`
}

// PermissionConfig holds permission policy settings.
type PermissionConfig struct {
	Edit        string      `toml:"edit,omitempty" json:"edit,omitempty"`
	Bash        interface{} `toml:"bash,omitempty" json:"bash,omitempty"` // string or map[string]string
	WebFetch    string      `toml:"webfetch,omitempty" json:"webfetch,omitempty"`
	ExternalDir string      `toml:"external_directory,omitempty" json:"external_directory,omitempty"`
	DoomLoop    string      `toml:"doom_loop,omitempty" json:"doom_loop,omitempty"`
}

// CommandConfig holds a custom slash-command definition supplied from config
// rather than a markdown file.
type CommandConfig struct {
	Template    string `toml:"template" json:"template"`
	Description string `toml:"description,omitempty" json:"description,omitempty"`
	Agent       string `toml:"agent,omitempty" json:"agent,omitempty"`
	Model       string `toml:"model,omitempty" json:"model,omitempty"`
	Subtask     bool   `toml:"subtask,omitempty" json:"subtask,omitempty"`
}

// MCPConfig holds MCP server configuration.
type MCPConfig struct {
	Type        string            `toml:"type,omitempty" json:"type,omitempty"` // "local"|"remote"
	Command     []string          `toml:"command,omitempty" json:"command,omitempty"`
	URL         string            `toml:"url,omitempty" json:"url,omitempty"`
	Headers     map[string]string `toml:"headers,omitempty" json:"headers,omitempty"`
	Environment map[string]string `toml:"environment,omitempty" json:"environment,omitempty"`
	Enabled     *bool             `toml:"enabled,omitempty" json:"enabled,omitempty"`
	Timeout     int               `toml:"timeout,omitempty" json:"timeout,omitempty"`
}

// FormatterConfig holds code formatter configuration.
type FormatterConfig struct {
	Disabled    bool              `toml:"disabled,omitempty" json:"disabled,omitempty"`
	Command     []string          `toml:"command,omitempty" json:"command,omitempty"`
	Environment map[string]string `toml:"environment,omitempty" json:"environment,omitempty"`
	Extensions  []string          `toml:"extensions,omitempty" json:"extensions,omitempty"`
}

// LSPConfig holds LSP server configuration.
type LSPConfig struct {
	Disabled bool              `toml:"disabled,omitempty" json:"disabled,omitempty"`
	Servers  map[string]string `toml:"servers,omitempty" json:"servers,omitempty"` // language -> command
}

// WatcherConfig holds file watcher configuration.
type WatcherConfig struct {
	Ignore []string `toml:"ignore,omitempty" json:"ignore,omitempty"`
}

// ExperimentalConfig holds experimental feature flags.
type ExperimentalConfig struct {
	BatchTool bool `toml:"batch_tool,omitempty" json:"batch_tool,omitempty"`
}

// Model represents an LLM model available from a provider.
type Model struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	ProviderID        string       `json:"providerID"`
	ContextLength     int          `json:"contextLength"`
	MaxOutputTokens   int          `json:"maxOutputTokens,omitempty"`
	SupportsTools     bool         `json:"supportsTools"`
	SupportsVision    bool         `json:"supportsVision"`
	SupportsReasoning bool         `json:"supportsReasoning,omitempty"`
	InputPrice        float64      `json:"inputPrice,omitempty"`  // per 1M tokens
	OutputPrice       float64      `json:"outputPrice,omitempty"` // per 1M tokens
	Options           ModelOptions `json:"options,omitempty"`
}

// ModelOptions contains model-specific options.
type ModelOptions struct {
	Temperature    *float64 `json:"temperature,omitempty"`
	TopP           *float64 `json:"topP,omitempty"`
	PromptCaching  bool     `json:"promptCaching,omitempty"`
	ExtendedOutput bool     `json:"extendedOutput,omitempty"`
}
