package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/Swind/go-fiber-runner/internal/historystore"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		dbPath string
		runID  string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs, or the resumes of one run",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := historystore.NewSQLiteStore(dbPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := commandContext(cmd)
			if err := st.Migrate(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			defer tw.Flush()

			if runID == "" {
				runs, err := st.Runs(ctx)
				if err != nil {
					return fmt.Errorf("list runs: %w", err)
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded.")
					return nil
				}
				fmt.Fprintln(tw, "RUN\tSCHEDULER\tSTARTED\tRESUMES\tLAST RESUME")
				for _, r := range runs {
					last := "-"
					if !r.LastAt.IsZero() {
						last = humanize.Time(r.LastAt)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						r.ID, r.Scheduler, humanize.Time(r.StartedAt), humanize.Comma(r.Resumes), last)
				}
				return nil
			}

			rows, err := st.Recent(ctx, runID, limit)
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}
			if len(rows) == 0 {
				fmt.Fprintf(out, "No resumes recorded for run %s.\n", runID)
				return nil
			}
			fmt.Fprintln(tw, "TICK\tHANDLE\tTASK\tOUTCOME\tDURATION\tSTARTED")
			for _, r := range rows {
				outcome := r.Outcome
				if r.ExitReason != "" {
					outcome += " (" + r.ExitReason + ")"
				}
				if r.First {
					outcome += " *"
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
					humanize.Comma(int64(r.Tick)), r.Handle, r.Task, outcome,
					r.Duration.Round(time.Microsecond), r.StartedAt.Format(time.RFC3339Nano))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite history file written by run --history-db")
	cmd.Flags().StringVar(&runID, "run", "", "Show resumes of this run instead of listing runs")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum resumes to show (0 for all)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}
