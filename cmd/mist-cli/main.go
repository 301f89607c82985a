// Mist CLI — инструмент командной строки для запуска задач,
// работы с кэшем результатов и deployment-скриптами через HTTP API.
//
// Использование:
//
//	mist [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	task     Управление задачами и кэшем результатов
//	backend  Backend'ы и инвентарь
//	deploy   Deployment-скрипты
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/billyhotjava/mist-ce/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "mist",
		Short:         "Mist CLI — cloud task management tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTaskCmd(clientFn, outputFn),
		cli.NewBackendCmd(clientFn, outputFn),
		cli.NewDeployCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
