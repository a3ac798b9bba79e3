package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sunobot/logger"
	"sunobot/model"
)

// ErrEmptyPool 服务器列表为空
var ErrEmptyPool = errors.New("server pool must not be empty")

// CreditsProber 查询某个后端的剩余额度
type CreditsProber interface {
	GetLimit(ctx context.Context, baseURL string) (model.CreditsInfo, error)
}

// ServerPool 有序的后端列表和进程内共享的当前服务器游标。
// 某个请求触发的切换对之后所有请求生效。
type ServerPool struct {
	mu           sync.Mutex
	servers      []model.Server
	activeIndex  int
	prober       CreditsProber
	probeTimeout time.Duration
}

// New 创建服务器池，urls 的顺序即轮换顺序
func New(urls []string, prober CreditsProber, probeTimeout time.Duration) (*ServerPool, error) {
	if len(urls) == 0 {
		return nil, ErrEmptyPool
	}
	servers := make([]model.Server, len(urls))
	for i, u := range urls {
		servers[i] = model.Server{BaseURL: u}
	}
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &ServerPool{
		servers:      servers,
		prober:       prober,
		probeTimeout: probeTimeout,
	}, nil
}

// Active 返回当前服务器
func (p *ServerPool) Active() model.Server {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.servers[p.activeIndex]
}

// ActiveIndex 返回当前游标
func (p *ServerPool) ActiveIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeIndex
}

// Servers 返回服务器列表的副本
func (p *ServerPool) Servers() []model.Server {
	out := make([]model.Server, len(p.servers))
	copy(out, p.servers)
	return out
}

// Size 服务器数量
func (p *ServerPool) Size() int {
	return len(p.servers)
}

// Rotate 切换到下一个服务器
func (p *ServerPool) Rotate() {
	p.mu.Lock()
	p.activeIndex = (p.activeIndex + 1) % len(p.servers)
	next := p.servers[p.activeIndex]
	idx := p.activeIndex
	p.mu.Unlock()

	logger.Info("switched Suno API server",
		logger.Int("index", idx),
		logger.String("server", next.BaseURL))
}

// ProbeCredits 查询服务器是否还有额度。
// 返回错误表示服务器不可用（网络错误或非200），调用方只需换下一个。
func (p *ServerPool) ProbeCredits(ctx context.Context, server model.Server) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	info, err := p.prober.GetLimit(ctx, server.BaseURL)
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", server.BaseURL, err)
	}

	if info.CreditsLeft != nil {
		logger.Info("Suno API credits",
			logger.String("server", server.BaseURL),
			logger.Float64("creditsLeft", *info.CreditsLeft))
	}
	return info.HasCredits(), nil
}

// EnsureAvailable 从当前服务器开始探测，没有额度就切换，最多探测 N 次
func (p *ServerPool) EnsureAvailable(ctx context.Context) bool {
	for i := 0; i < len(p.servers); i++ {
		server := p.Active()

		ok, err := p.ProbeCredits(ctx, server)
		switch {
		case err != nil:
			logger.Error("Suno API server unavailable",
				logger.String("server", server.BaseURL),
				logger.ErrorField(err))
		case ok:
			return true
		default:
			logger.Warn("no credits left, switching server",
				logger.String("server", server.BaseURL))
		}

		if ctx.Err() != nil {
			return false
		}
		p.Rotate()
	}

	logger.Error("all Suno API servers are out of credits or unavailable",
		logger.Int("servers", len(p.servers)))
	return false
}
