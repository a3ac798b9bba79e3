package generation

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"sunobot/core/clock"
	"sunobot/core/suno"
	"sunobot/core/utils"
	"sunobot/logger"
	"sunobot/model"
	"sunobot/repository"

	"github.com/google/uuid"
)

// SongAPI 后端的生成和状态查询接口
type SongAPI interface {
	Generate(ctx context.Context, baseURL, prompt string) ([]model.AudioArtifact, error)
	GetAudioInfo(ctx context.Context, baseURL, ids string) ([]model.AudioArtifact, error)
}

// Fetcher 下载音频到本地
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

// ServerPool 服务器池中编排器用到的部分
type ServerPool interface {
	Active() model.Server
	EnsureAvailable(ctx context.Context) bool
}

// QuotaManager 每日额度
type QuotaManager interface {
	CheckAndReserve(ctx context.Context, userID int64) (bool, error)
	Increment(ctx context.Context, userID int64) error
	Ceiling() int
}

// HistoryRecorder 记录交付的文件
type HistoryRecorder interface {
	Append(ctx context.Context, userID int64, path string) error
}

// Sink 前端的回调：轮询中的进度文本，以及最终文件的投递
type Sink interface {
	Progress(text string)
	Deliver(ctx context.Context, path string) error
}

// AdmitStatus 准入检查结果
type AdmitStatus string

const (
	AdmitAllowed       AdmitStatus = "allowed"
	AdmitQuotaExceeded AdmitStatus = "quota_exceeded"
	AdmitNoServers     AdmitStatus = "no_servers"
	AdmitBusy          AdmitStatus = "busy"
	AdmitError         AdmitStatus = "error"
)

// Admission 准入检查结果和给用户的提示
type Admission struct {
	Status  AdmitStatus `json:"status"`
	Message string      `json:"message"`
}

// Allowed reports whether the request may proceed to Run.
func (a Admission) Allowed() bool {
	return a.Status == AdmitAllowed
}

// Options 编排器的可调参数
type Options struct {
	PollInterval     time.Duration
	PollTimeout      time.Duration
	ProgressInterval time.Duration
	TempDir          string
	Extension        string
	Clock            clock.Clock
	Records          repository.GenerationRepository // 可选
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 300 * time.Second
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = 30 * time.Second
	}
	if o.TempDir == "" {
		o.TempDir = "temp_audio"
	}
	if o.Extension == "" {
		o.Extension = ".mp3"
	}
	if o.Clock == nil {
		o.Clock = clock.System{}
	}
}

// Orchestrator 提交生成任务、轮询状态、下载并交付结果。
// 只有交付成功才计入用户额度。
type Orchestrator struct {
	api     SongAPI
	fetcher Fetcher
	pool    ServerPool
	quota   QuotaManager
	history HistoryRecorder
	opts    Options

	mu       sync.Mutex
	inflight map[int64]string // userID -> jobID
}

// NewOrchestrator 创建编排器
func NewOrchestrator(api SongAPI, fetcher Fetcher, pool ServerPool, quota QuotaManager, history HistoryRecorder, opts Options) *Orchestrator {
	opts.defaults()
	return &Orchestrator{
		api:      api,
		fetcher:  fetcher,
		pool:     pool,
		quota:    quota,
		history:  history,
		opts:     opts,
		inflight: make(map[int64]string),
	}
}

func (o *Orchestrator) busy(userID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[userID]
	return ok
}

func (o *Orchestrator) acquire(userID int64, jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.inflight[userID]; ok {
		return false
	}
	o.inflight[userID] = jobID
	return true
}

func (o *Orchestrator) release(userID int64) {
	o.mu.Lock()
	delete(o.inflight, userID)
	o.mu.Unlock()
}

// Admit 在任何生成请求之前检查额度和服务器可用性
func (o *Orchestrator) Admit(ctx context.Context, userID int64) Admission {
	if o.busy(userID) {
		return Admission{Status: AdmitBusy, Message: MsgBusy}
	}

	ok, err := o.quota.CheckAndReserve(ctx, userID)
	if err != nil {
		logger.Error("quota check failed", logger.UserID(userID), logger.ErrorField(err))
		return Admission{Status: AdmitError, Message: MsgQuotaUnavailable}
	}
	if !ok {
		return Admission{Status: AdmitQuotaExceeded, Message: fmt.Sprintf(MsgLimitReached, o.quota.Ceiling())}
	}

	if !o.pool.EnsureAvailable(ctx) {
		return Admission{Status: AdmitNoServers, Message: MsgNoServers}
	}
	return Admission{Status: AdmitAllowed, Message: MsgAllowed}
}

// Run 执行一次完整的生成流程，所有失败都转换成给用户的文本
func (o *Orchestrator) Run(ctx context.Context, userID int64, prompt string, sink Sink) model.DeliveryResult {
	job := &model.GenerationJob{
		ID:     uuid.NewString(),
		UserID: userID,
		Prompt: prompt,
		Status: model.JobSubmitted,
	}

	if !o.acquire(userID, job.ID) {
		return model.DeliveryResult{JobID: job.ID, Status: model.JobFailed, Message: MsgBusy}
	}
	defer o.release(userID)

	job.Server = o.pool.Active().BaseURL
	logger.Info("song generation started",
		logger.String("jobId", job.ID),
		logger.UserID(userID),
		logger.String("server", job.Server))

	result := o.run(ctx, job, sink)
	result.JobID = job.ID
	result.JobIDs = job.JobIDs
	result.Elapsed = job.Elapsed

	logger.Info("song generation finished",
		logger.String("jobId", job.ID),
		logger.UserID(userID),
		logger.String("status", string(result.Status)),
		logger.Duration("elapsed", job.Elapsed))

	o.record(job, result)
	return result
}

func (o *Orchestrator) fail(job *model.GenerationJob, msg string) model.DeliveryResult {
	job.Status = model.JobFailed
	return model.DeliveryResult{Status: model.JobFailed, Message: msg}
}

func (o *Orchestrator) run(ctx context.Context, job *model.GenerationJob, sink Sink) model.DeliveryResult {
	artifacts, err := o.api.Generate(ctx, job.Server, job.Prompt)
	if err != nil {
		logger.Error("audio generation request failed",
			logger.String("jobId", job.ID),
			logger.ErrorField(err))
		return o.fail(job, MsgGenerateFailed)
	}

	ids, list := suno.JoinIDs(artifacts)
	if len(list) == 0 {
		logger.Error("backend returned no job ids", logger.String("jobId", job.ID))
		return o.fail(job, MsgGenerateFailed)
	}
	job.JobIDs = list
	job.Status = model.JobPolling

	lead, result, done := o.poll(ctx, job, ids, sink)
	if done {
		return result
	}

	return o.download(ctx, job, lead, sink)
}

// poll 轮询直到首个任务进入 streaming、超时或失败。
// 只看返回列表中的第一个任务，其余变体不参与判断。
func (o *Orchestrator) poll(ctx context.Context, job *model.GenerationJob, ids string, sink Sink) (model.AudioArtifact, model.DeliveryResult, bool) {
	start := o.opts.Clock.Now()
	lastBucket := 0

	for {
		elapsed := o.opts.Clock.Now().Sub(start)
		job.Elapsed = elapsed
		if elapsed >= o.opts.PollTimeout {
			job.Status = model.JobTimedOut
			logger.Warn("song generation timed out",
				logger.String("jobId", job.ID),
				logger.String("ids", ids))
			return model.AudioArtifact{}, model.DeliveryResult{Status: model.JobTimedOut, Message: MsgTimedOut}, true
		}

		infos, err := o.api.GetAudioInfo(ctx, job.Server, ids)
		if err != nil {
			logger.Warn("error receiving audio info",
				logger.String("jobId", job.ID),
				logger.ErrorField(err))
		} else if len(infos) > 0 && infos[0].Status == model.ArtifactStatusStreaming {
			lead := infos[0]
			if lead.AudioURL == "" {
				logger.Error("streaming status without audio url",
					logger.String("jobId", job.ID),
					logger.String("id", lead.ID))
				return model.AudioArtifact{}, o.fail(job, MsgNoAudio), true
			}
			job.Status = model.JobStreaming
			return lead, model.DeliveryResult{}, false
		}

		if bucket := int(elapsed / o.opts.ProgressInterval); bucket > lastBucket {
			lastBucket = bucket
			sink.Progress(MsgStillGenerating)
		}

		if err := o.opts.Clock.Sleep(ctx, o.opts.PollInterval); err != nil {
			logger.Warn("song generation cancelled",
				logger.String("jobId", job.ID),
				logger.ErrorField(err))
			return model.AudioArtifact{}, o.fail(job, MsgCancelled), true
		}
	}
}

// FilePath 交付文件的本地路径，按用户分目录避免同名覆盖
func (o *Orchestrator) FilePath(userID int64, title string) string {
	return filepath.Join(o.opts.TempDir, strconv.FormatInt(userID, 10), SanitizeTitle(title)+o.opts.Extension)
}

func (o *Orchestrator) download(ctx context.Context, job *model.GenerationJob, lead model.AudioArtifact, sink Sink) model.DeliveryResult {
	job.Status = model.JobDownloading
	dest := o.FilePath(job.UserID, lead.Title)
	if abs, err := filepath.Abs(dest); err == nil {
		dest = abs
	}

	if err := o.fetcher.Fetch(ctx, lead.AudioURL, dest); err != nil {
		logger.Error("error downloading audio",
			logger.String("jobId", job.ID),
			logger.String("url", lead.AudioURL),
			logger.ErrorField(err))
		return o.fail(job, MsgDownloadFailed)
	}
	if !utils.FileExists(dest) {
		logger.Error("file not found after download",
			logger.String("jobId", job.ID),
			logger.String("path", dest))
		return o.fail(job, MsgDownloadFailed)
	}

	if err := sink.Deliver(ctx, dest); err != nil {
		logger.Error("error sending audio file",
			logger.String("jobId", job.ID),
			logger.String("path", dest),
			logger.ErrorField(err))
		return o.fail(job, MsgSendFailed)
	}
	job.Status = model.JobDelivered

	// 交付之后才记历史和额度
	if err := o.history.Append(ctx, job.UserID, dest); err != nil {
		logger.Error("failed to record history",
			logger.String("jobId", job.ID),
			logger.ErrorField(err))
	}
	if err := o.quota.Increment(ctx, job.UserID); err != nil {
		logger.Error("failed to increment quota",
			logger.String("jobId", job.ID),
			logger.ErrorField(err))
	}

	return model.DeliveryResult{
		Status:  model.JobDelivered,
		Message: MsgDelivered,
		Title:   lead.Title,
		Path:    dest,
	}
}

func (o *Orchestrator) record(job *model.GenerationJob, result model.DeliveryResult) {
	if o.opts.Records == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := &model.GenerationRecord{
		ID:         job.ID,
		UserID:     job.UserID,
		Prompt:     job.Prompt,
		Server:     job.Server,
		JobIDs:     strings.Join(job.JobIDs, ","),
		Status:     result.Status,
		Title:      result.Title,
		FilePath:   result.Path,
		ElapsedSec: int(job.Elapsed / time.Second),
		CreatedAt:  o.opts.Clock.Now(),
	}
	if err := o.opts.Records.Create(ctx, rec); err != nil {
		logger.Warn("failed to save generation record",
			logger.String("jobId", job.ID),
			logger.ErrorField(err))
	}
}
