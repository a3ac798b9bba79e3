package cmd

import (
	"context"
	"fmt"
	"time"

	"sunobot/cache"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试额度存储使用的Redis连接是否成功，并进行基本读写操作。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := cache.ConnectRedis(cfg); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer cache.CloseRedis()
		fmt.Println("Redis连接成功！")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cache.CheckRedis(ctx, cache.RedisClient); err != nil {
			return fmt.Errorf("Redis read/write check failed: %w", err)
		}
		fmt.Println("Redis基本操作测试成功！")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
