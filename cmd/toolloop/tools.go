package main

import (
	"fmt"

	"github.com/ashutoshrp06/toolloop/internal/config"
	"github.com/ashutoshrp06/toolloop/internal/functions"
	"github.com/ashutoshrp06/toolloop/internal/tools"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List available tools",
	Long: `List the tools the agent can call.

Examples:
  toolloop tools           # List all tools
  toolloop tools --verbose # Show parameter details`,
	Run: func(cmd *cobra.Command, args []string) {
		runTools()
	},
}

func runTools() {
	cfg, err := loadConfig()
	if err != nil {
		cfg = config.DefaultConfig()
	}

	// The catalogue does not depend on a live model, so no provider is built.
	registry, err := functions.NewRegistry(functions.Deps{Coordinates: cfg.Vision.Coordinates})
	if err != nil {
		printError("Failed to load tools", err)
		return
	}
	printTools(registry.ListTools(), verbose)
}

func printTools(infos []tools.ToolInfo, detailed bool) {
	toolStyle := warnStyle.Bold(true)
	paramStyle := infoStyle

	fmt.Println(headerStyle.Render("Available Tools"))
	fmt.Println()

	for _, info := range infos {
		fmt.Printf("  %s\n", toolStyle.Render(info.Name))
		fmt.Printf("    %s\n", dimStyle.Render(info.Description))

		if detailed && len(info.Parameters) > 0 {
			fmt.Println("    Parameters:")
			for _, p := range info.Parameters {
				req := ""
				if p.Required {
					req = " (required)"
				}
				fmt.Printf("      %s %s%s\n", paramStyle.Render(p.Name), dimStyle.Render(string(p.Type)), req)
				if p.Description != "" {
					fmt.Printf("        %s\n", dimStyle.Render(p.Description))
				}
			}
		}
		fmt.Println()
	}

	fmt.Println(dimStyle.Render(fmt.Sprintf("  Total: %d tools available", len(infos))))
	if !detailed {
		fmt.Println(dimStyle.Render("  Use --verbose for parameter details"))
	}
}
