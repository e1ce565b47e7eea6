package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ashutoshrp06/toolloop/internal/agent"
	"github.com/ashutoshrp06/toolloop/internal/config"
	"github.com/ashutoshrp06/toolloop/internal/logging"
	"github.com/ashutoshrp06/toolloop/internal/ui"
	"github.com/ashutoshrp06/toolloop/internal/validator"
	"github.com/ashutoshrp06/toolloop/pkg/models"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath  string
	verbose     bool
	interactive bool
	imagePath   string
	provider    string
	model       string
	maxTurns    int
	metricsAddr string
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

var rootCmd = &cobra.Command{
	Use:   "toolloop [query]",
	Short: "Tool-calling agent for bounding-box detection",
	Long: `
████████╗ ██████╗  ██████╗ ██╗     ██╗      ██████╗  ██████╗
╚══██╔══╝██╔═══██╗██╔═══██╗██║     ██║     ██╔═══██╗██╔══██╗
   ██║   ██║   ██║██║   ██║██║     ██║     ██║   ██║██████╔╝
   ██║   ██║   ██║██║   ██║██║     ██║     ██║   ██║██╔═══╝
   ██║   ╚██████╔╝╚██████╔╝███████╗███████╗╚██████╔╝██║
   ╚═╝    ╚═════╝  ╚═════╝ ╚══════╝╚══════╝ ╚═════╝ ╚═╝

  Ask a vision model about an image; it calls tools to locate objects
  and writes annotated copies with bounding boxes.

Usage:
  toolloop "Draw a box around the dog" --image ./assets/dog.jpg
  toolloop --it --image ./assets/dog.jpg
  toolloop tools
  toolloop config --init`,

	Run: func(cmd *cobra.Command, args []string) {
		if interactive {
			os.Exit(runInteractive())
		}
		if len(args) > 0 {
			os.Exit(runOneShot(strings.Join(args, " ")))
		}
		_ = cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&interactive, "it", false, "Start interactive mode")
	rootCmd.Flags().StringVarP(&imagePath, "image", "i", "", "Local image to attach to the query")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "Model provider (gemini, claude, openai, ollama)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Model name")
	rootCmd.PersistentFlags().IntVar(&maxTurns, "max-turns", 0, "Maximum model turns per query")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg)
	return cfg, cfg.Validate()
}

func applyFlags(cfg *config.Config) {
	if provider != "" && provider != cfg.Provider.Name {
		cfg.Provider.Name = provider
		// A model name from another provider would not resolve.
		cfg.Provider.Model = ""
	}
	if model != "" {
		cfg.Provider.Model = model
	}
	if maxTurns > 0 {
		cfg.Agent.MaxTurns = maxTurns
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
}

func createLogger(cfg *config.Config, quiet bool) *zap.Logger {
	level := cfg.Logging.Level
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "error"
	}
	logger, err := logging.NewLogger(level, cfg.Logging.Format)
	if err != nil {
		printError("Invalid logging settings", err)
		return zap.NewNop()
	}
	return logger
}

// initApp loads config, wires the agent and checks connectivity.
func initApp(ctx context.Context, quiet bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := createLogger(cfg, quiet)
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	fmt.Fprint(os.Stderr, warnStyle.Render(fmt.Sprintf("Connecting to %s... ", a.chat.Name())))
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.ping(pingCtx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("✗"))
		return nil, fmt.Errorf("could not reach %s: %w", a.chat.Name(), err)
	}
	fmt.Fprintln(os.Stderr, successStyle.Render("✓"))
	fmt.Fprintf(os.Stderr, "Using model: %s\n", a.agent.LLMInfo())

	a.serveMetrics()
	return a, nil
}

func runOneShot(query string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := initApp(ctx, false)
	if err != nil {
		printError("Failed to initialize", err)
		return 1
	}
	defer a.Close()

	if a.cfg.Agent.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Agent.RunTimeout)
		defer cancel()
	}

	res, err := runQuery(ctx, os.Stdout, a, query, imagePath)
	if err != nil {
		printError("Query failed", err)
		return 1
	}
	if res.Status != models.RunDone {
		return 1
	}
	return 0
}

// runQuery runs one query and prints the progress and the answer to w.
func runQuery(ctx context.Context, w io.Writer, a *app, query, image string) (*agent.RunResult, error) {
	session := agent.NewSession(a.agent, 0)

	fmt.Fprintf(w, "%s %s\n\n", headerStyle.Render("Query:"), query)

	res, err := session.Ask(ctx, query, image, agent.WithObserver(func(ev models.AgentEvent) {
		printEvent(w, ev)
	}))
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(w)
	switch res.Status {
	case models.RunDone:
		fmt.Fprintln(w, successStyle.Render("Answer:"))
	default:
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Stopped (%s): %s", res.Status, res.Error())))
	}
	fmt.Fprintln(w, res.FinalText)
	if res.AnnotatedImage != "" {
		fmt.Fprintf(w, "\n%s %s\n", infoStyle.Render("Annotated image:"), res.AnnotatedImage)
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("\n%d turn(s), run %s", res.Turns, res.RunID)))
	return res, nil
}

func printEvent(w io.Writer, ev models.AgentEvent) {
	switch ev.State {
	case models.StateThinking:
		msg := "Thinking..."
		if ev.Message != "" {
			msg = ev.Message
		}
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("[turn %d] %s", ev.Turn, msg)))
	case models.StateToolCall:
		if ev.ToolCall != nil {
			fmt.Fprintf(w, "%s %s %v\n", infoStyle.Render("Calling tool:"), ev.ToolCall.Name, ev.ToolCall.Arguments)
		}
	case models.StateToolExecuting:
		if r := ev.ToolResult; r != nil {
			if r.Success() {
				fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("  ✓ %s (%s)", r.ToolName, r.Duration.Round(time.Millisecond))))
			} else {
				fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("  ✗ %s: %s: %s", r.ToolName, r.Kind, r.Error)))
			}
		}
	}
}

func runInteractive() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := initApp(ctx, true)
	if err != nil {
		printError("Failed to initialize", err)
		return 1
	}
	defer a.Close()

	if imagePath != "" {
		if err := validator.NewInputValidator().ValidateImage(imagePath); err != nil {
			printError("Invalid image", err)
			return 1
		}
	}

	session := agent.NewSession(a.agent, a.cfg.Agent.HistoryMessages)
	model := ui.NewModel(ui.Options{
		Run: func(query, image string) <-chan models.AgentEvent {
			runCtx := ctx
			if a.cfg.Agent.RunTimeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(ctx, a.cfg.Agent.RunTimeout)
				return cancelOnClose(session.Stream(runCtx, query, image), cancel)
			}
			return session.Stream(runCtx, query, image)
		},
		Tools: a.registry.ListTools(),
		Clear: session.ClearHistory,
		Image: imagePath,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		printError("Error running UI", err)
		return 1
	}
	return 0
}

// cancelOnClose forwards events and calls cancel once the stream ends.
func cancelOnClose(in <-chan models.AgentEvent, cancel context.CancelFunc) <-chan models.AgentEvent {
	out := make(chan models.AgentEvent)
	go func() {
		defer cancel()
		defer close(out)
		for ev := range in {
			out <- ev
		}
	}()
	return out
}

func printError(msg string, err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("Error: %s: %v", msg, err)))
}
