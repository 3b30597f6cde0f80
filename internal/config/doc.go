// Package config provides configuration loading, merging, and path management for AgentCore.
//
// This package handles the configuration system that supports a layered
// loading strategy with well-defined precedence.
//
// # Configuration Loading
//
// The Load function searches for and merges configuration from multiple
// sources in priority order (lowest to highest):
//
//  1. Global config (~/.config/agentcore/agentcore.toml)
//  2. Project config, discovered by walking up from the working directory
//     to the nearest .git root (.agentcore/agentcore.toml)
//  3. AGENTCORE_CONFIG file
//  4. AGENTCORE_CONFIG_CONTENT inline TOML
//  5. Environment variables
//
// # Format
//
// Configuration is written in TOML:
//
//	model = "anthropic/claude-sonnet-4"
//	instructions = ["{file:~/custom-instructions.txt}"]
//
//	[provider.anthropic.options]
//	api_key = "{env:ANTHROPIC_API_KEY}"
//
// # Variable Interpolation
//
// Configuration files support two types of variable interpolation, expanded
// against the raw file bytes before TOML parsing:
//   - {env:VAR_NAME} - expands to an environment variable's value (empty
//     string if unset)
//   - {file:path} - expands to a file's contents; paths may be absolute,
//     relative to the config file's directory, or use ~/ for the home
//     directory. A placeholder whose file cannot be read is left untouched.
//
// # Configuration Merging
//
// When multiple configuration sources are found, they are merged with:
//   - Scalar values (strings) overwritten by the later source
//   - Maps merged key-wise
//   - Instructions appended
//   - Pointer-typed sections (Permission, LSP, Watcher, Experimental)
//     replaced wholesale when the later source sets them
//
// # Path Management
//
// The package provides XDG Base Directory Specification compliant path
// management through the Paths type:
//   - Data: ~/.local/share/agentcore (XDG_DATA_HOME)
//   - Config: ~/.config/agentcore (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/agentcore (XDG_CACHE_HOME)
//   - State: ~/.local/state/agentcore (XDG_STATE_HOME)
//
// On Windows, these paths are adapted to use APPDATA as appropriate.
//
// # Environment Variable Overrides
//
//   - AGENTCORE_MODEL - override the default model
//   - AGENTCORE_SMALL_MODEL - override the small model
//   - AGENTCORE_CONFIG - path to a specific config file, merged after the
//     project config
//   - AGENTCORE_CONFIG_CONTENT - inline TOML configuration, merged last
//     before environment variable overrides
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY / GOOGLE_API_KEY / AWS_ACCESS_KEY_ID -
//     fill in a provider's API key if the loaded config didn't set one
//
// # Project Discovery
//
// The configuration loader walks up the directory tree from the specified
// starting directory looking for .agentcore/agentcore.toml, stopping once it
// has checked the directory containing a .git folder (the repository root).
//
// # Usage Example
//
//	// Load configuration from the current directory
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Get standard paths
//	paths := config.GetPaths()
//	err = paths.EnsurePaths() // Create directories if they don't exist
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Save configuration
//	err = config.Save(cfg, config.GlobalConfigPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
