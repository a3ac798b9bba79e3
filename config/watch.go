package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"sunobot/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// WatchEnvFile 监听 env 文件变化，文件被写入或替换时用新内容回调 onChange。
// 监听的是所在目录，编辑器的 rename-替换 也能捕获。阻塞直到 ctx 结束。
func WatchEnvFile(ctx context.Context, path string, onChange func(map[string]string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			values, err := godotenv.Read(abs)
			if err != nil {
				logger.Warn("env file reload failed", logger.String("path", abs), logger.ErrorField(err))
				continue
			}
			onChange(values)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("env watcher error", logger.ErrorField(err))
		}
	}
}

// DailyLimitFrom 从 env 内容中取 USER_DAILY_LIMIT
func DailyLimitFrom(values map[string]string) (int, bool) {
	raw, ok := values["USER_DAILY_LIMIT"]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
