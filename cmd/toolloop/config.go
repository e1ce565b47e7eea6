package main

import (
	"fmt"
	"os"

	"github.com/ashutoshrp06/toolloop/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or create configuration",
	Long:  "View the effective configuration or create a default config file.",
	Run:   runConfig,
}

var configInit bool

func init() {
	configCmd.Flags().BoolVar(&configInit, "init", false, "Create default config file")
}

func runConfig(cmd *cobra.Command, args []string) {
	if configInit {
		if err := initConfig(configPath); err != nil {
			printError("Failed to create config", err)
			os.Exit(1)
		}
		return
	}
	showConfig()
}

// initConfig writes the default configuration to path, or ./toolloop.yaml.
func initConfig(path string) error {
	if path == "" {
		path = "toolloop.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		fmt.Println(warnStyle.Render(path + " already exists. Run 'toolloop config' to view it."))
		return nil
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	fmt.Println(successStyle.Render("Created " + path + " with default settings."))
	fmt.Println("\nEdit this file to configure:")
	fmt.Println("  - provider.name and provider.model")
	fmt.Println("  - vision.coordinates (normalized or pixel)")
	fmt.Println("  - agent.max_turns and retry policy")
	fmt.Println("  - drawing and transcript output")
	fmt.Println("\nAPI keys are read from GEMINI_API_KEY, ANTHROPIC_API_KEY or OPENAI_API_KEY (a .env file works too).")
	return nil
}

func showConfig() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("Could not load config (%v). Showing defaults:\n", err)))
		cfg = config.DefaultConfig()
	} else {
		fmt.Println(infoStyle.Bold(true).Render("Current Configuration:\n"))
	}

	shown := *cfg
	if shown.Provider.APIKey != "" {
		shown.Provider.APIKey = "********"
	}
	data, err := yaml.Marshal(shown)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println(string(data))

	fmt.Println(dimStyle.Render("\nConfig file locations (in order of precedence):"))
	fmt.Println("  1. --config flag")
	fmt.Println("  2. ./toolloop.yaml")
	fmt.Println("  3. ./config.yaml")
	fmt.Println("  4. ~/.toolloop/toolloop.yaml, ~/.toolloop/config.yaml")
	fmt.Println(dimStyle.Render("Environment variables prefixed with " + config.EnvPrefix + "_ override file values."))
}
