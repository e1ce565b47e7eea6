package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	Version   = "0.1.0"
	GitCommit = "dev"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

func runVersion(cmd *cobra.Command, args []string) {
	label := dimStyle.Render
	value := infoStyle.Render

	fmt.Println(headerStyle.Render("toolloop"))
	fmt.Println()
	fmt.Printf("%s %s\n", label("Version:"), value(Version))
	fmt.Printf("%s %s\n", label("Git Commit:"), value(GitCommit))
	fmt.Printf("%s %s\n", label("Build Date:"), value(BuildDate))
	fmt.Printf("%s %s\n", label("Go Version:"), value(runtime.Version()))
	fmt.Printf("%s %s/%s\n", label("Platform:"), value(runtime.GOOS), value(runtime.GOARCH))
}
