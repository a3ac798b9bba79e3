package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"sunobot/logger"
)

// DefaultLimit 每个用户最多保留的歌曲数
const DefaultLimit = 10

// Archive 可选的远端副本（例如 MinIO），失败只记录日志
type Archive interface {
	Put(ctx context.Context, userID int64, path string) error
	Remove(ctx context.Context, userID int64, path string) error
}

// Option 配置 Store
type Option func(*Store)

// WithLimit 设置每个用户的历史上限
func WithLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithArchive 追加和淘汰时同步到远端副本
func WithArchive(a Archive) Option {
	return func(s *Store) {
		s.archive = a
	}
}

// Store 每个用户最近生成的文件路径，按生成顺序排列（最新的在最后）。
// 每次修改都把整个映射重写到磁盘。
type Store struct {
	mu      sync.RWMutex
	path    string
	limit   int
	entries map[int64][]string
	archive Archive
	remove  func(string) error
}

// Open 加载历史文件，文件不存在时从空历史开始
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:    path,
		limit:   DefaultLimit,
		entries: make(map[int64][]string),
		remove:  os.Remove,
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	entries, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse history file %s: %w", path, err)
	}
	s.entries = entries
	logger.Info("history loaded", logger.String("path", path), logger.Int("users", len(entries)))
	return s, nil
}

// eviction 追加后需要淘汰的条目
type eviction struct {
	next    []string
	evicted []string
}

func (s *Store) planAppend(userID int64, path string) eviction {
	current := s.entries[userID]
	next := make([]string, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, path)

	var evicted []string
	if over := len(next) - s.limit; over > 0 {
		kept := next[over:]
		for _, old := range next[:over] {
			// 同名歌曲会复用路径，仍被保留条目引用的文件不能删
			if !containsPath(kept, old) && !containsPath(evicted, old) {
				evicted = append(evicted, old)
			}
		}
		next = kept
	}
	return eviction{next: next, evicted: evicted}
}

func containsPath(paths []string, path string) bool {
	for _, p := range paths {
		if p == path {
			return true
		}
	}
	return false
}

// Append 记录新文件。分三步：计算淘汰、删除被淘汰的文件、持久化。
// 删除失败只记录日志，历史记录的完整性优先于文件清理。
func (s *Store) Append(ctx context.Context, userID int64, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan := s.planAppend(userID, path)

	for _, old := range plan.evicted {
		s.deleteFile(ctx, userID, old)
	}

	s.entries[userID] = plan.next
	if err := s.persistLocked(); err != nil {
		return err
	}

	if s.archive != nil {
		if err := s.archive.Put(ctx, userID, path); err != nil {
			logger.Warn("archive upload failed",
				logger.UserID(userID),
				logger.String("path", path),
				logger.ErrorField(err))
		}
	}
	return nil
}

func (s *Store) deleteFile(ctx context.Context, userID int64, path string) {
	if err := s.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to delete evicted file",
			logger.UserID(userID),
			logger.String("path", path),
			logger.ErrorField(err))
	} else {
		logger.Info("deleted old file", logger.UserID(userID), logger.String("path", path))
	}

	if s.archive != nil {
		if err := s.archive.Remove(ctx, userID, path); err != nil {
			logger.Warn("archive remove failed",
				logger.UserID(userID),
				logger.String("path", path),
				logger.ErrorField(err))
		}
	}
}

// List 返回用户的历史副本，最新的在最后
func (s *Store) List(userID int64) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	current := s.entries[userID]
	out := make([]string, len(current))
	copy(out, current)
	return out
}

// Contains 判断路径是否属于该用户的历史
func (s *Store) Contains(userID int64, path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return containsPath(s.entries[userID], path)
}

// Limit 每个用户的上限
func (s *Store) Limit() int {
	return s.limit
}

// persistLocked 写临时文件再 rename，保证文件要么是旧内容要么是新内容
func (s *Store) persistLocked() error {
	data, err := encode(s.entries)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close history: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}

	logger.Debug("history saved", logger.String("path", s.path))
	return nil
}

// 文件格式: {"<userId>": ["<path>", ...]}
func encode(entries map[int64][]string) ([]byte, error) {
	out := make(map[string][]string, len(entries))
	for id, paths := range entries {
		out[strconv.FormatInt(id, 10)] = paths
	}
	return json.MarshalIndent(out, "", "  ")
}

func decode(data []byte) (map[int64][]string, error) {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	entries := make(map[int64][]string, len(raw))
	for key, paths := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", key, err)
		}
		entries[id] = paths
	}
	return entries, nil
}
