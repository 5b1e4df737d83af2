package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"DropFM/storage"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	minioUser   int64
	minioPrefix string
	minioStats  bool
	minioDelete bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "查看 MinIO 曲库镜像",
	Long:  `列出镜像到 MinIO 的曲库文件，支持按用户或前缀过滤、查看统计信息、删除某个用户的镜像。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewMinioStore(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("无法连接到MinIO: %w", err)
		}
		out := cmd.OutOrStdout()

		prefix := minioPrefix
		if minioUser > 0 {
			prefix = storage.UserPrefix(minioUser) + prefix
		}

		if minioDelete {
			if minioUser <= 0 {
				return fmt.Errorf("删除操作需要指定 --user")
			}
			n, err := store.DeletePrefix(cmd.Context(), storage.UserPrefix(minioUser))
			fmt.Fprintf(out, "deleted %d objects\n", n)
			return err
		}

		objects, stats, err := store.ListObjects(cmd.Context(), prefix)
		if err != nil {
			return err
		}
		if minioStats {
			fmt.Fprintln(out, renderBucketStats(store.Bucket(), prefix, stats))
			return nil
		}

		tw := table.NewWriter()
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"Key", "Size", "Modified", "Type"})
		for _, o := range objects {
			tw.AppendRow(table.Row{o.Key, humanize.IBytes(uint64(o.Size)), o.LastModified.Local().Format("2006-01-02 15:04"), o.ContentType})
		}
		tw.AppendFooter(table.Row{strconv.Itoa(len(objects)) + " objects", humanize.IBytes(uint64(stats.TotalSize)), "", ""})
		tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
		fmt.Fprintln(out, tw.Render())
		return nil
	},
}

func renderBucketStats(bucket, prefix string, stats *storage.BucketStats) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(fmt.Sprintf("%s/%s", bucket, prefix))
	tw.AppendRow(table.Row{"objects", stats.TotalObjects})
	tw.AppendRow(table.Row{"size", humanize.IBytes(uint64(stats.TotalSize))})
	if !stats.LastModified.IsZero() {
		tw.AppendRow(table.Row{"last modified", humanize.Time(stats.LastModified)})
	}

	exts := make([]string, 0, len(stats.ByExtension))
	for ext := range stats.ByExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	tw.AppendSeparator()
	for _, ext := range exts {
		label := ext
		if label == "" {
			label = "(none)"
		}
		tw.AppendRow(table.Row{label, humanize.IBytes(uint64(stats.ByExtension[ext]))})
	}
	return tw.Render()
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().Int64VarP(&minioUser, "user", "u", 0, "只看该用户 ID 的镜像")
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示统计信息")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除该用户的全部镜像")

	minioCmd.Example = `  # 列出所有镜像文件
  dropfm minio

  # 用户 3 的统计信息
  dropfm minio -u 3 -s

  # 删除用户 3 的镜像
  dropfm minio -u 3 -d`
}
