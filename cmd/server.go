package cmd

import (
	"sunobot/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 sunobot 服务",
	Long:  `启动 HTTP/WebSocket 服务，提供额度查询、历史记录和歌曲生成接口`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
