package model

import "time"

// Server 表示一个可互换的 Suno 后端，身份由其在池中的位置决定
type Server struct {
	BaseURL string `json:"baseUrl"`
}

// JobStatus 生成任务的状态
type JobStatus string

const (
	JobSubmitted   JobStatus = "submitted"
	JobPolling     JobStatus = "polling"
	JobStreaming   JobStatus = "streaming"
	JobDownloading JobStatus = "downloading"
	JobDelivered   JobStatus = "delivered"
	JobTimedOut    JobStatus = "timed_out"
	JobFailed      JobStatus = "failed"
)

// Terminal reports whether no further transition can happen.
func (s JobStatus) Terminal() bool {
	return s == JobDelivered || s == JobTimedOut || s == JobFailed
}

// ArtifactStatusStreaming is the only provider status the poll loop acts on.
const ArtifactStatusStreaming = "streaming"

// AudioArtifact 后端状态查询返回的单个音频条目
type AudioArtifact struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	AudioURL string `json:"audio_url,omitempty"`
	Title    string `json:"title,omitempty"`
}

// CreditsInfo /api/get_limit 的响应
type CreditsInfo struct {
	CreditsLeft *float64 `json:"credits_left"`
}

// HasCredits 没有 credits_left 字段视为没有额度
func (c CreditsInfo) HasCredits() bool {
	return c.CreditsLeft != nil && *c.CreditsLeft > 0
}

// GenerationJob 一次生成请求的临时状态，不持久化
type GenerationJob struct {
	ID      string        `json:"id"`
	UserID  int64         `json:"userId"`
	Prompt  string        `json:"prompt"`
	Server  string        `json:"server"`
	JobIDs  []string      `json:"jobIds"`
	Status  JobStatus     `json:"status"`
	Elapsed time.Duration `json:"elapsed"`
}

// DeliveryResult 编排器返回给前端的最终结果
type DeliveryResult struct {
	JobID   string        `json:"jobId"`
	Status  JobStatus     `json:"status"`
	Message string        `json:"message"`
	Title   string        `json:"title,omitempty"`
	Path    string        `json:"path,omitempty"`
	JobIDs  []string      `json:"jobIds,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Delivered reports whether the artifact reached the user.
func (r DeliveryResult) Delivered() bool {
	return r.Status == JobDelivered
}

// UserQuota 用户当天的使用次数
type UserQuota struct {
	UserID int64  `json:"userId"`
	Count  int    `json:"count"`
	Date   string `json:"date"` // YYYY-MM-DD
}

// QuotaUsage 用户额度查询结果
type QuotaUsage struct {
	Count   int `json:"count"`
	Ceiling int `json:"ceiling"`
}
