package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version 构建时通过 -ldflags "-X main.version=..." 注入
var version = "dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本号",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "post_digest %s\n", version)
			return err
		},
	}
}
