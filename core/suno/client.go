package suno

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sunobot/model"
)

// ErrUnexpectedStatus 后端返回了非 200 状态码
var ErrUnexpectedStatus = errors.New("unexpected status code")

// Client Suno API 客户端。后端地址按调用传入，同一个客户端可以服务整个服务器池。
type Client struct {
	httpClient *http.Client
}

// NewClient 创建新的API客户端
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewClientWithHTTP 使用自定义 http.Client，主要用于测试
func NewClientWithHTTP(httpClient *http.Client) *Client {
	return &Client{httpClient: httpClient}
}

// SetTimeout 设置请求超时时间
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

type generateRequest struct {
	Prompt           string `json:"prompt"`
	MakeInstrumental bool   `json:"make_instrumental"`
	WaitAudio        bool   `json:"wait_audio"`
}

// Generate 提交生成任务，返回后端分配的任务列表
func (c *Client) Generate(ctx context.Context, baseURL, prompt string) ([]model.AudioArtifact, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var artifacts []model.AudioArtifact
	if err := c.do(req, &artifacts); err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	return artifacts, nil
}

// GetAudioInfo 批量查询任务状态，ids 为逗号拼接的任务ID
func (c *Client) GetAudioInfo(ctx context.Context, baseURL, ids string) ([]model.AudioArtifact, error) {
	endpoint := baseURL + "/api/get?ids=" + url.QueryEscape(ids)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var artifacts []model.AudioArtifact
	if err := c.do(req, &artifacts); err != nil {
		return nil, fmt.Errorf("get audio info: %w", err)
	}
	return artifacts, nil
}

// GetLimit 查询服务器剩余额度
func (c *Client) GetLimit(ctx context.Context, baseURL string) (model.CreditsInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/get_limit", nil)
	if err != nil {
		return model.CreditsInfo{}, fmt.Errorf("failed to create request: %w", err)
	}

	var info model.CreditsInfo
	if err := c.do(req, &info); err != nil {
		return model.CreditsInfo{}, fmt.Errorf("get limit: %w", err)
	}
	return info, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// JoinIDs 把任务ID拼接成批量查询用的 key
func JoinIDs(artifacts []model.AudioArtifact) (string, []string) {
	ids := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		if a.ID != "" {
			ids = append(ids, a.ID)
		}
	}
	return strings.Join(ids, ","), ids
}
