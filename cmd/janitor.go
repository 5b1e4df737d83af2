package cmd

import (
	"fmt"

	"DropFM/core/ingest"

	"github.com/spf13/cobra"
)

var janitorCmd = &cobra.Command{
	Use:   "janitor",
	Short: "清理过期的暂存目录，可选修复中断的上传记录",
	Long: `删除超过 staging_max_age_hours 的 attempt-* 暂存目录。
加 --recover-interrupted 时还会把停留在 pending/processing 的记录标记为 failed，
只能在服务器停止时使用：运行中的上传会被误判为中断。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		staging, err := ingest.NewStaging(cfg.StagingDir)
		if err != nil {
			return err
		}
		removed, err := staging.CleanStale(cfg.StagingMaxAge())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale staging dirs\n", removed)

		if !janitorRecover {
			return nil
		}
		st, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		return recoverInterrupted(cmd.Context(), st.logs)
	},
}

var janitorRecover bool

func init() {
	rootCmd.AddCommand(janitorCmd)
	janitorCmd.Flags().BoolVar(&janitorRecover, "recover-interrupted", false, "同时把 pending/processing 记录标记为 failed（仅在服务器停止时使用）")
}
