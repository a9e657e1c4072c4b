package main

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "列出需要生成摘要的帖子，不调用 LLM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			e, err := ctx.newEngine(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}

			idx, eligible, err := e.Scan(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d posts discovered, %d need a summary\n", idx.Len(), len(eligible))
			if len(eligible) == 0 {
				return nil
			}

			rows := make([][]string, 0, len(eligible))
			for _, entry := range eligible {
				handles := make([]string, 0, len(entry.Handles))
				for _, h := range entry.Handles {
					handles = append(handles, string(h))
				}
				rows = append(rows, []string{
					entry.ID,
					truncate(entry.Post.Title, 40),
					strconv.Itoa(utf8.RuneCountInString(entry.Post.Content)),
					strings.Join(handles, ", "),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Title", "Chars", "Documents"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}
