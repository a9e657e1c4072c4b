package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/post_digest/app/post_digest/pkg/engine"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/logger"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "为所有缺少摘要的帖子生成摘要并写回快照",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("配置错误: %w", err)
			}

			opts := []engine.Option{engine.WithLimit(limit)}
			if journal := ctx.openJournal(cfg); journal != nil {
				defer journal.Close()
				opts = append(opts, engine.WithJournal(journal))
			}

			e, err := ctx.newEngine(cmd.Context(), cfg, true, opts...)
			if err != nil {
				return err
			}

			logger.Log.Infof("启动摘要生成，数据目录: %s", cfg.Snapshot.Dir)
			res, err := e.Run(cmd.Context())
			if err != nil {
				return err
			}

			printSummary(cmd.OutOrStdout(), res)
			if res.Fatal() {
				return errRunFailed
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "本次最多处理的帖子数 (0 表示不限)")
	return cmd
}

func printSummary(w io.Writer, res *engine.Result) {
	fmt.Fprintf(w, "run %s: %d discovered, %d eligible, %d attempted, %d succeeded, %d failed, %d documents written\n",
		res.RunID, res.Discovered, res.Eligible, res.Attempted, res.Succeeded, res.Failed, res.DocumentsWritten)
	if res.Backfilled > 0 {
		fmt.Fprintf(w, "%d documents backfilled from existing summaries\n", res.Backfilled)
	}
	if len(res.Failures) == 0 {
		return
	}

	rows := make([][]string, 0, len(res.Failures))
	for _, f := range res.Failures {
		detail := ""
		if f.Err != nil {
			detail = f.Err.Error()
		}
		rows = append(rows, []string{f.PostID, f.Reason, truncate(detail, 80)})
	}
	fmt.Fprintln(w, renderTable([]string{"Post", "Reason", "Detail"}, rows, nil))
}
