package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/matadcze/task-tracker/internal/service"
)

var workerOnce bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Запустить планировщик напоминаний DUE_SOON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, "worker", false)
		if err != nil {
			return err
		}
		defer a.Close()

		reminders := service.NewReminderService(a.store, a.recorder, a.cfg.ReminderInterval, a.cfg.ReminderWindowHours, a.logger)

		if workerOnce {
			processed, err := reminders.Sweep(ctx, a.cfg.ReminderWindowHours)
			if err != nil {
				return err
			}
			a.logger.Info("Проверка напоминаний завершена", slog.Int("processed", processed))
			return nil
		}

		reminders.Start(ctx)
		<-ctx.Done()
		a.logger.Info("Получен сигнал завершения")
		reminders.Stop()
		return nil
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "выполнить одну проверку и завершиться")
}
