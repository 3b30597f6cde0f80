package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agentcore-ai/agentcore/pkg/types"
	"github.com/pelletier/go-toml/v2"
)

// Load loads configuration from multiple sources (priority order, lowest to
// highest):
//  1. Global config (~/.config/agentcore/agentcore.toml)
//  2. Project config, discovered by walking up from directory to the
//     nearest .git root (.agentcore/agentcore.toml)
//  3. AGENTCORE_CONFIG - an explicit file path
//  4. AGENTCORE_CONFIG_CONTENT - inline TOML content
//  5. Environment variable overrides
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
		Agent:    make(map[string]types.AgentConfig),
	}

	globalPath := GetPaths().Config
	loadConfigFile(filepath.Join(globalPath, "agentcore.toml"), config)

	if directory != "" {
		if projectPath := findProjectConfig(directory); projectPath != "" {
			loadConfigFile(projectPath, config)
		}
	}

	if customPath := os.Getenv("AGENTCORE_CONFIG"); customPath != "" {
		loadConfigFile(customPath, config)
	}

	if content := os.Getenv("AGENTCORE_CONFIG_CONTENT"); content != "" {
		var fileConfig types.Config
		if err := toml.Unmarshal(interpolate([]byte(content), directory), &fileConfig); err == nil {
			mergeConfig(config, &fileConfig)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// findProjectConfig walks up from directory looking for .agentcore/agentcore.toml,
// stopping once a .git directory (project root) has been checked.
func findProjectConfig(directory string) string {
	dir := directory
	for {
		candidate := filepath.Join(dir, ".agentcore", "agentcore.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return ""
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadConfigFile loads a single TOML config file and merges it into config.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	data = interpolate(data, filepath.Dir(path))

	var fileConfig types.Config
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

var (
	envPlaceholder  = regexp.MustCompile(`\{env:([A-Za-z_][A-Za-z0-9_]*)\}`)
	filePlaceholder = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// interpolate expands {env:VAR} and {file:path} placeholders in a config
// file's raw bytes before parsing. {file:path} paths are resolved relative
// to baseDir (the config file's directory) and support ~/ expansion;
// missing env vars expand to "" and missing files are left untouched.
func interpolate(data []byte, baseDir string) []byte {
	data = envPlaceholder.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPlaceholder.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})

	data = filePlaceholder.ReplaceAllFunc(data, func(match []byte) []byte {
		path := string(filePlaceholder.FindSubmatch(match)[1])
		resolved := path
		if strings.HasPrefix(resolved, "~/") {
			resolved = filepath.Join(os.Getenv("HOME"), resolved[2:])
		} else if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(baseDir, resolved)
		}
		content, err := os.ReadFile(resolved)
		if err != nil {
			return match
		}
		return content
	})

	return data
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SmallModel != "" {
		target.SmallModel = source.SmallModel
	}
	if source.Username != "" {
		target.Username = source.Username
	}
	if source.Share != "" {
		target.Share = source.Share
	}
	if source.Sandbox != "" {
		target.Sandbox = source.Sandbox
	}
	if len(source.Instructions) > 0 {
		target.Instructions = append(target.Instructions, source.Instructions...)
	}
	if len(source.Hooks) > 0 {
		target.Hooks = append(target.Hooks, source.Hooks...)
	}

	if source.Tools != nil {
		if target.Tools == nil {
			target.Tools = make(map[string]bool)
		}
		for k, v := range source.Tools {
			target.Tools[k] = v
		}
	}

	if source.PromptVariables != nil {
		if target.PromptVariables == nil {
			target.PromptVariables = make(map[string]string)
		}
		for k, v := range source.PromptVariables {
			target.PromptVariables[k] = v
		}
	}

	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	if source.Agent != nil {
		if target.Agent == nil {
			target.Agent = make(map[string]types.AgentConfig)
		}
		for k, v := range source.Agent {
			target.Agent[k] = v
		}
	}

	if source.Command != nil {
		if target.Command == nil {
			target.Command = make(map[string]types.CommandConfig)
		}
		for k, v := range source.Command {
			target.Command[k] = v
		}
	}

	if source.MCP != nil {
		if target.MCP == nil {
			target.MCP = make(map[string]types.MCPConfig)
		}
		for k, v := range source.MCP {
			target.MCP[k] = v
		}
	}

	if source.Formatter != nil {
		if target.Formatter == nil {
			target.Formatter = make(map[string]types.FormatterConfig)
		}
		for k, v := range source.Formatter {
			target.Formatter[k] = v
		}
	}

	if source.Permission != nil {
		target.Permission = source.Permission
	}
	if source.LSP != nil {
		target.LSP = source.LSP
	}
	if source.Watcher != nil {
		target.Watcher = source.Watcher
	}
	if source.Experimental != nil {
		target.Experimental = source.Experimental
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"google":    "GOOGLE_API_KEY",
		"bedrock":   "AWS_ACCESS_KEY_ID",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if config.Provider == nil {
				config.Provider = make(map[string]types.ProviderConfig)
			}
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
		}
	}

	if model := os.Getenv("AGENTCORE_MODEL"); model != "" {
		config.Model = model
	}
	if smallModel := os.Getenv("AGENTCORE_SMALL_MODEL"); smallModel != "" {
		config.SmallModel = smallModel
	}
}

// Save saves the configuration to a TOML file.
func Save(config *types.Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
