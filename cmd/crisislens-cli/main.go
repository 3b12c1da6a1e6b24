// CrisisLens CLI — операторская утилита командной строки.
//
// Использование:
//
//	crisislens [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	review    Листинг, claim и решение review-задач
//	workflow  Снимок и отмена workflow
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "crisislens",
		Short:         "CrisisLens CLI — verification operations tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewReviewCmd(clientFn, outputFn),
		cli.NewWorkflowCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
