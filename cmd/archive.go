package cmd

import (
	"context"
	"fmt"
	"time"

	"sunobot/storage"

	"github.com/spf13/cobra"
)

var archiveUserID int64

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "查看 MinIO 中归档的歌曲",
	Long:  `列出 MinIO 存储桶中 history/ 下的对象，可以按用户过滤，并显示统计信息。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.MinioEnabled() {
			return fmt.Errorf("MINIO_ENDPOINT is not set")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		archive, err := storage.NewArchive(ctx, cfg)
		if err != nil {
			return err
		}

		prefix := "history/"
		if archiveUserID != 0 {
			prefix = storage.UserPrefix(archiveUserID)
		}

		objects, stats, err := archive.List(ctx, prefix)
		if err != nil {
			return err
		}

		fmt.Printf("存储桶: %s  前缀: %s\n", cfg.MinioBucket, prefix)
		fmt.Printf("对象数量: %d  总大小: %s\n", stats.TotalObjects, storage.FormatSize(stats.TotalSize))
		for _, o := range objects {
			fmt.Printf("%-60s %10s  %s\n", o.Key, storage.FormatSize(o.Size), o.LastModified.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	archiveCmd.Flags().Int64VarP(&archiveUserID, "user", "u", 0, "只列出该用户的对象")
	rootCmd.AddCommand(archiveCmd)
}
