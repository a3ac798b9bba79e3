package cmd

import (
	"context"
	"fmt"
	"time"

	"sunobot/db"
	"sunobot/repository"

	"github.com/spf13/cobra"
)

var (
	recordsUserID int64
	recordsLimit  int
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "查看 MySQL 中的生成记录",
	Long:  `连接数据库，按时间倒序列出用户的生成记录（包括失败和超时）。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.ConnectGormDB(cfg); err != nil {
			return err
		}
		defer db.CloseGormDB()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		repo := repository.NewGormGenerationRepository(db.GormDB)
		records, err := repo.ListByUser(ctx, recordsUserID, recordsLimit)
		if err != nil {
			return err
		}

		for _, r := range records {
			fmt.Printf("%s  %-11s %4ds  %s  %q\n",
				r.CreatedAt.Format("2006-01-02 15:04:05"), r.Status, r.ElapsedSec, r.Server, r.Prompt)
			if r.FilePath != "" {
				fmt.Printf("    -> %s\n", r.FilePath)
			}
		}
		if len(records) == 0 {
			fmt.Println("没有记录")
		}
		return nil
	},
}

func init() {
	recordsCmd.Flags().Int64VarP(&recordsUserID, "user", "u", 0, "用户 ID")
	recordsCmd.Flags().IntVarP(&recordsLimit, "limit", "n", 20, "最多显示条数")
	_ = recordsCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(recordsCmd)
}
