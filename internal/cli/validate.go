package cli

import (
	"fmt"

	"github.com/Swind/go-fiber-runner/internal/config"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a scenario file without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Scenario %s: %d tasks, capacity %d, tick period %dms, %d fps\n",
				sc.Scheduler.Name, len(sc.Tasks), sc.Scheduler.Capacity, sc.Scheduler.TickPeriodMS, sc.Host.FPS)
			if extra := len(sc.Tasks) - sc.Scheduler.Capacity; extra > 0 {
				logger.Warn("scenario has more tasks than table slots", "tasks", len(sc.Tasks), "capacity", sc.Scheduler.Capacity)
				fmt.Fprintf(out, "Warning: %d task(s) will be refused (table full)\n", extra)
			}
			if !sc.Host.Realtime && sc.Host.MaxFrames == 0 {
				fmt.Fprintln(out, "Note: simulated run without host.max_frames; pass --frames to run it")
			}
			fmt.Fprintln(out, "OK")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Scenario YAML file")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}
