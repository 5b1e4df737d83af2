package cmd

import (
	"fmt"
	"strconv"
	"time"

	"DropFM/model"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	logsUser   int64
	logsStatus string
	logsLimit  int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "查看上传日志",
	Long:  `以表格形式列出上传记录，可按用户与状态过滤。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status := model.UploadStatus(logsStatus)
		switch status {
		case "", model.UploadStatusPending, model.UploadStatusProcessing, model.UploadStatusCompleted, model.UploadStatusFailed:
		default:
			return fmt.Errorf("unknown status %q", logsStatus)
		}

		st, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.logs.List(cmd.Context(), model.UploadLogFilter{
			UserID: logsUser,
			Status: status,
			Limit:  logsLimit,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderUploadLogs(entries))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().Int64VarP(&logsUser, "user", "u", 0, "只显示该用户 ID 的记录")
	logsCmd.Flags().StringVarP(&logsStatus, "status", "s", "", "按状态过滤 (pending|processing|completed|failed)")
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 50, "最多显示的记录数")

	logsCmd.Example = `  # 最近 50 条记录
  dropfm logs

  # 用户 3 的失败记录
  dropfm logs -u 3 -s failed`
}

const maxSourceWidth = 48

func renderUploadLogs(entries []*model.UploadLog) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "User", "Type", "Source", "Status", "Files", "Created", "Took", "Error"})

	for _, e := range entries {
		took := ""
		if e.CompletedAt != nil {
			took = e.CompletedAt.Sub(e.CreatedAt).Round(time.Second).String()
		}
		errMsg := ""
		if e.ErrorMessage != nil {
			errMsg = *e.ErrorMessage
		}
		tw.AppendRow(table.Row{
			strconv.FormatInt(e.ID, 10),
			strconv.FormatInt(e.UserID, 10),
			string(e.SourceKind),
			e.Source,
			string(e.Status),
			strconv.Itoa(e.FileCount),
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			took,
			errMsg,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignRight},
		{Number: 4, WidthMax: maxSourceWidth},
		{Number: 6, Align: text.AlignRight},
		{Number: 9, WidthMax: maxSourceWidth},
	})
	tw.AppendFooter(table.Row{"", "", "", "", "", "", "", "total", strconv.Itoa(len(entries))})
	return tw.Render()
}
