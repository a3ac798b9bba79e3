package cmd

import (
	"fmt"
	"path/filepath"

	"sunobot/core/history"
	"sunobot/core/utils"

	"github.com/spf13/cobra"
)

var historyUserID int64

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "查看用户的生成历史",
	Long:  `读取历史文件，列出用户最近的歌曲，并标出磁盘上已不存在的文件。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(cfg.HistoryFile, history.WithLimit(cfg.HistoryLimit))
		if err != nil {
			return err
		}

		paths := store.List(historyUserID)
		fmt.Printf("用户 %d 的历史 (%d/%d):\n", historyUserID, len(paths), store.Limit())
		for i, p := range paths {
			mark := ""
			if !utils.FileExists(p) {
				mark = " (missing)"
			}
			fmt.Printf("%2d. %s%s\n", i+1, filepath.Base(p), mark)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int64VarP(&historyUserID, "user", "u", 0, "用户 ID")
	_ = historyCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(historyCmd)
}
