package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentcore-ai/agentcore/internal/agentloop"
	"github.com/agentcore-ai/agentcore/internal/config"
	"github.com/agentcore-ai/agentcore/internal/event"
	"github.com/agentcore-ai/agentcore/internal/permission"
	"github.com/agentcore-ai/agentcore/internal/promptbuild"
	"github.com/agentcore-ai/agentcore/internal/provider"
	"github.com/agentcore-ai/agentcore/internal/registry"
	"github.com/agentcore-ai/agentcore/internal/resolve"
	"github.com/agentcore-ai/agentcore/internal/session"
	"github.com/agentcore-ai/agentcore/internal/storage"
	"github.com/agentcore-ai/agentcore/internal/subagent"
	"github.com/agentcore-ai/agentcore/internal/tool"
	"github.com/agentcore-ai/agentcore/pkg/types"
	"github.com/spf13/cobra"
)

var (
	runModel        string
	runAgent        string
	runContinue     bool
	runSession      string
	runFormat       string
	runFiles        []string
	runTitle        string
	runPrompt       string
	runPromptFile   string
	runPromptInline string
	runDir          string
)

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Start an interactive AgentCore session",
	Long: `Start an interactive AgentCore session with the specified message.

Examples:
  agentcore run "Fix the bug in main.go"
  agentcore run --model anthropic/claude-sonnet-4 "Explain this code"
  agentcore run --continue  # Continue last session
  agentcore run --file main.go "Review this file"`,
	RunE: runInteractive,
}

func init() {
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model to use (provider/model format)")
	runCmd.Flags().StringVar(&runAgent, "agent", "", "Agent to use")
	runCmd.Flags().BoolVarP(&runContinue, "continue", "c", false, "Continue the last session")
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "Session ID to continue")
	runCmd.Flags().StringVar(&runFormat, "format", "default", "Output format (default|json)")
	runCmd.Flags().StringArrayVarP(&runFiles, "file", "f", nil, "File(s) to attach to message")
	runCmd.Flags().StringVar(&runTitle, "title", "", "Session title")
	runCmd.Flags().StringVar(&runPrompt, "prompt", "", "Custom prompt template")
	runCmd.Flags().StringVar(&runPromptFile, "prompt-file", "", "Custom prompt from file")
	runCmd.Flags().StringVar(&runPromptInline, "prompt-inline", "", "Custom prompt as inline text")
	runCmd.Flags().StringVar(&runDir, "directory", "", "Working directory")
}

func runInteractive(cmd *cobra.Command, args []string) error {
	// Determine working directory
	workDir, err := GetWorkDir(runDir)
	if err != nil {
		return err
	}

	// Initialize paths
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	// Load configuration
	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	// Override model if specified
	if runModel != "" {
		appConfig.Model = runModel
	}

	// Build message from args
	message := strings.Join(args, " ")
	if message == "" && !runContinue && runSession == "" {
		return fmt.Errorf("message required. Usage: agentcore run \"your message\"")
	}

	// Initialize storage
	store := storage.New(paths.StoragePath())

	// Initialize providers
	ctx := context.Background()
	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}

	// Initialize tool registry
	toolReg := tool.DefaultRegistry(workDir, store)

	// Initialize the component registry: agents (including config-defined
	// custom agents), commands, skills and hooks. This is also what backs
	// the "/name" resolver below.
	reg, err := registry.New(workDir, appConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize component registry: %w", err)
	}
	toolReg.RegisterTaskTool(reg.Agents)

	// Parse default provider and model from config
	var defaultProviderID, defaultModelID string
	if appConfig.Model != "" {
		parts := strings.SplitN(appConfig.Model, "/", 2)
		if len(parts) == 2 {
			defaultProviderID = parts[0]
			defaultModelID = parts[1]
		}
	}
	if defaultProviderID == "" {
		defaultProviderID = "anthropic"
		defaultModelID = "claude-sonnet-4-20250514"
	}

	// Initialize permission checker. A single instance is shared between
	// the top-level processor and the subagent spawner so that every
	// subagent's approvals serialize through the same approval gate as
	// its parent.
	sharedChecker := permission.NewChecker()

	loop := agentloop.New(
		sharedChecker,
		store,
		providerReg,
		toolReg,
		subagent.Config{
			AgentRegistry:     reg.Agents,
			WorkDir:           workDir,
			DefaultProviderID: defaultProviderID,
			DefaultModelID:    defaultModelID,
		},
		defaultProviderID,
		defaultModelID,
	)
	toolReg.SetTaskExecutor(loop.Spawner)
	loop.Processor.SetPromptBuilder(promptbuild.New(reg))

	// Handle custom prompt
	var systemPrompt string
	if runPromptFile != "" {
		data, err := os.ReadFile(runPromptFile)
		if err != nil {
			return fmt.Errorf("failed to read prompt file: %w", err)
		}
		systemPrompt = string(data)
	} else if runPromptInline != "" {
		systemPrompt = runPromptInline
	} else if runPrompt != "" {
		// Try to read as file first, then use as inline
		if data, err := os.ReadFile(runPrompt); err == nil {
			systemPrompt = string(data)
		} else {
			systemPrompt = runPrompt
		}
	}

	// Handle file attachments - read and include in message
	var fileContent strings.Builder
	for _, file := range runFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", file, err)
		}
		fileContent.WriteString(fmt.Sprintf("\n\n--- File: %s ---\n%s", file, string(content)))
	}
	if fileContent.Len() > 0 {
		message = message + fileContent.String()
	}

	// A message beginning with "/" names a command or skill rather than
	// free text; resolve it to its expanded prompt before it reaches the
	// agent loop. A skill with `context: fork` dispatches straight to a
	// subagent and never joins the top-level session transcript.
	if strings.HasPrefix(strings.TrimSpace(message), "/") {
		res, err := resolve.New(reg).Resolve(ctx, message)
		if err != nil {
			return err
		}
		if res.Model != "" {
			appConfig.Model = res.Model
		}
		if res.RunsInSubagent {
			result, err := loop.RunSubagent(ctx, runSession, subagent.SpawnOptions{
				AgentName: res.SubagentType,
				Prompt:    res.Prompt,
				Model:     res.Model,
			})
			if err != nil {
				return fmt.Errorf("subagent error: %w", err)
			}
			fmt.Println(result.Output)
			return nil
		}
		message = res.Prompt
	}

	// Handle continue/session
	var sessionID string
	if runSession != "" {
		sessionID = runSession
	} else if runContinue {
		// List sessions and get the most recent
		sessions, err := store.List(ctx, []string{"session"})
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(sessions) > 0 {
			sessionID = sessions[len(sessions)-1]
		}
	}

	// Create session ID if not continuing, persisting a session record so
	// storage.List/Get can find it on a later --continue.
	isNewSession := sessionID == ""
	if isNewSession {
		sessionID = fmt.Sprintf("sess_%s", ulid.Make().String())
	}
	if isNewSession {
		title := runTitle
		if title == "" {
			title = truncate(message, 60)
		}
		sess := &types.Session{
			ID:        sessionID,
			Directory: workDir,
			Title:     title,
			Time:      types.SessionTime{Created: time.Now().UnixMilli()},
		}
		if err := store.Put(ctx, []string{"session", sessionID}, sess); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		event.PublishSync(event.Event{Type: event.SessionCreated, Data: event.SessionCreatedData{Info: sess}})
	}

	if message != "" {
		if err := addUserMessage(ctx, store, sessionID, message); err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
	}

	// Create agent configuration
	agentName := runAgent
	if agentName == "" {
		agentName = "default"
	}
	agentCfg := session.DefaultAgent()
	agentCfg.Name = agentName
	agentCfg.Prompt = systemPrompt

	// Process callback
	callback := func(msg *types.Message, parts []types.Part) {
		for _, part := range parts {
			switch p := part.(type) {
			case *types.TextPart:
				fmt.Print(p.Text)
			}
		}
	}

	// Note: the user message was already persisted by addUserMessage above;
	// the agent loop reads it back from session history

	// Run the agentic loop
	fmt.Printf("Starting session %s...\n", sessionID)
	fmt.Printf("Model: %s\n", appConfig.Model)
	fmt.Printf("Message: %s\n\n", truncate(message, 100))

	if err := loop.RunTopLevel(ctx, sessionID, agentCfg, 0, callback); err != nil {
		return fmt.Errorf("processing error: %w", err)
	}

	fmt.Println()
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// addUserMessage persists the turn's user message and its text part ahead
// of the agent loop, which reads session history from storage rather than
// taking the message as a direct argument.
func addUserMessage(ctx context.Context, store *storage.Storage, sessionID, content string) error {
	msgID := ulid.Make().String()
	msg := &types.Message{
		ID:        msgID,
		SessionID: sessionID,
		Role:      "user",
		Time:      types.MessageTime{Created: time.Now().UnixMilli()},
	}
	if err := store.Put(ctx, []string{"message", sessionID, msgID}, msg); err != nil {
		return err
	}

	partID := ulid.Make().String()
	textPart := &types.TextPart{
		ID:        partID,
		Type:      "text",
		MessageID: msgID,
		Text:      content,
	}
	if err := store.Put(ctx, []string{"part", msgID, partID}, textPart); err != nil {
		return err
	}

	event.PublishSync(event.Event{Type: event.MessageCreated, Data: event.MessageCreatedData{Info: msg}})
	return nil
}
