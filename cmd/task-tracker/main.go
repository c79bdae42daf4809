// Точка входа Task Tracker.
// Подкоманды: serve (HTTP API), worker (напоминания о сроках), migrate (миграции БД).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matadcze/task-tracker/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "task-tracker",
	Short:        "Task Tracker — многопользовательский трекер задач",
	Version:      config.Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd)
}
