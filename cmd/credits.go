package cmd

import (
	"context"
	"fmt"

	"sunobot/core/pool"
	"sunobot/core/suno"

	"github.com/spf13/cobra"
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "查询所有 Suno 服务器的剩余额度",
	Long:  `依次请求每个服务器的 /api/get_limit，显示剩余额度，不切换活动服务器。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := suno.NewClient()
		p, err := pool.New(cfg.SunoServers, client, cfg.ProbeTimeout)
		if err != nil {
			return err
		}

		for i, server := range p.Servers() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ProbeTimeout)
			info, err := client.GetLimit(ctx, server.BaseURL)
			cancel()

			switch {
			case err != nil:
				fmt.Printf("%d. %s: unavailable (%v)\n", i+1, server.BaseURL, err)
			case info.CreditsLeft == nil:
				fmt.Printf("%d. %s: no credits_left in response\n", i+1, server.BaseURL)
			default:
				fmt.Printf("%d. %s: %.0f credits left\n", i+1, server.BaseURL, *info.CreditsLeft)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(creditsCmd)
}
