package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "显示最近的运行记录",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.DB.DSN == "" {
				return errors.New("未配置数据库 (DATABASE_URL)，没有运行记录")
			}
			journal := ctx.openJournal(cfg)
			if journal == nil {
				return errors.New("无法打开运行记录数据库")
			}
			defer journal.Close()

			runs, err := journal.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.ID,
					formatTime(r.StartedAt),
					formatDuration(r.StartedAt, r.FinishedAt),
					strconv.Itoa(r.Eligible),
					strconv.Itoa(r.Succeeded),
					strconv.Itoa(r.Failed),
					strconv.Itoa(r.DocumentsWritten),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Started", "Duration", "Eligible", "Succeeded", "Failed", "Written"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "显示的记录数")
	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func formatDuration(start, end time.Time) string {
	if start.IsZero() || end.IsZero() {
		return "-"
	}
	return end.Sub(start).Round(time.Second).String()
}
