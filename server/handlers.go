package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"sunobot/core/auth"
	"sunobot/core/clock"
	"sunobot/core/generation"
	"sunobot/logger"
	"sunobot/model"
	"sunobot/storage"

	"github.com/gorilla/mux"
)

// SongRunner 准入检查和生成流程
type SongRunner interface {
	Admit(ctx context.Context, userID int64) generation.Admission
	Run(ctx context.Context, userID int64, prompt string, sink generation.Sink) model.DeliveryResult
}

// QuotaReader 查询当日额度
type QuotaReader interface {
	Usage(ctx context.Context, userID int64) (model.QuotaUsage, error)
}

// HistoryReader 查询用户历史
type HistoryReader interface {
	List(userID int64) []string
	Contains(userID int64, path string) bool
}

// PoolView 服务器池状态
type PoolView interface {
	Servers() []model.Server
	ActiveIndex() int
}

// APIHandler 处理所有API请求
type APIHandler struct {
	runner   SongRunner
	quota    QuotaReader
	history  HistoryReader
	pool     PoolView
	secret   []byte
	tokenTTL time.Duration
	clock    clock.Clock
}

// NewAPIHandler 创建新的API处理器。secret 同时用于请求鉴权和文件 token 签名。
func NewAPIHandler(runner SongRunner, quota QuotaReader, history HistoryReader, pool PoolView, secret string, tokenTTL time.Duration, clk clock.Clock) *APIHandler {
	if clk == nil {
		clk = clock.System{}
	}
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &APIHandler{
		runner:   runner,
		quota:    quota,
		history:  history,
		pool:     pool,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		clock:    clk,
	}
}

// HistoryItem 历史列表中的一项
type HistoryItem struct {
	Path string `json:"path"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ServersResponse 服务器池视图
type ServersResponse struct {
	Active  int            `json:"active"`
	Servers []model.Server `json:"servers"`
}

// SongRequest POST /api/songs 请求体
type SongRequest struct {
	UserID int64  `json:"userId"`
	Prompt string `json:"prompt"`
}

// SongResponse POST /api/songs 响应体
type SongResponse struct {
	Result   model.DeliveryResult `json:"result"`
	Progress []string             `json:"progress,omitempty"`
	URL      string               `json:"url,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", logger.ErrorField(err))
	}
}

func userIDFromQuery(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("userId")
	if raw == "" {
		return 0, errors.New("userId is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid userId %q", raw)
	}
	return id, nil
}

// AdmissionHTTPStatus 准入结果对应的 HTTP 状态码
func AdmissionHTTPStatus(status generation.AdmitStatus) int {
	switch status {
	case generation.AdmitAllowed:
		return http.StatusOK
	case generation.AdmitQuotaExceeded:
		return http.StatusTooManyRequests
	case generation.AdmitBusy:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// AuthMiddleware 校验 X-Bot-Token
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Bot-Token")
		if token == "" {
			http.Error(w, "X-Bot-Token header is required", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), h.secret) != 1 {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// fileURL 为历史中的文件签发下载地址
func (h *APIHandler) fileURL(userID int64, path string) (string, error) {
	token, err := auth.IssueFileToken(h.secret, userID, path, h.tokenTTL, h.clock.Now())
	if err != nil {
		return "", err
	}
	return "/api/files/" + token, nil
}

// GetQuotaHandler GET /api/quota?userId=
func (h *APIHandler) GetQuotaHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	usage, err := h.quota.Usage(r.Context(), userID)
	if err != nil {
		logger.Error("failed to read quota", logger.UserID(userID), logger.ErrorField(err))
		http.Error(w, generation.MsgQuotaUnavailable, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// GetHistoryHandler GET /api/history?userId=
func (h *APIHandler) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	paths := h.history.List(userID)
	items := make([]HistoryItem, 0, len(paths))
	for _, p := range paths {
		url, err := h.fileURL(userID, p)
		if err != nil {
			logger.Error("failed to issue file token", logger.UserID(userID), logger.ErrorField(err))
			http.Error(w, "Failed to build history", http.StatusInternalServerError)
			return
		}
		items = append(items, HistoryItem{Path: p, Name: filepath.Base(p), URL: url})
	}
	writeJSON(w, http.StatusOK, items)
}

// GetFileHandler GET /api/files/{token}，token 本身就是凭证
func (h *APIHandler) GetFileHandler(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	claims, err := auth.ParseFileToken(h.secret, token, h.clock.Now())
	if err != nil {
		http.Error(w, "Invalid or expired link", http.StatusUnauthorized)
		return
	}

	// 已被淘汰的文件不再提供
	if !h.history.Contains(claims.UserID, claims.Path) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", storage.ContentType(claims.Path))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(claims.Path)))
	http.ServeFile(w, r, claims.Path)
}

// GetServersHandler GET /api/servers
func (h *APIHandler) GetServersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ServersResponse{
		Active:  h.pool.ActiveIndex(),
		Servers: h.pool.Servers(),
	})
}

// collectSink 同步请求的 sink：收集进度文本，交付时签发下载地址
type collectSink struct {
	h      *APIHandler
	userID int64

	mu       sync.Mutex
	progress []string
	url      string
}

func (s *collectSink) Progress(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, text)
}

func (s *collectSink) Deliver(_ context.Context, path string) error {
	url, err := s.h.fileURL(s.userID, path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	return nil
}

// CreateSongHandler POST /api/songs，阻塞直到交付、超时或失败
func (h *APIHandler) CreateSongHandler(w http.ResponseWriter, r *http.Request) {
	var req SongRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.UserID == 0 || req.Prompt == "" {
		http.Error(w, "userId and prompt are required", http.StatusBadRequest)
		return
	}

	admission := h.runner.Admit(r.Context(), req.UserID)
	if !admission.Allowed() {
		writeJSON(w, AdmissionHTTPStatus(admission.Status), admission)
		return
	}

	sink := &collectSink{h: h, userID: req.UserID}
	result := h.runner.Run(r.Context(), req.UserID, req.Prompt, sink)

	sink.mu.Lock()
	resp := SongResponse{Result: result, Progress: sink.progress}
	if result.Delivered() {
		resp.URL = sink.url
	}
	sink.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// NewRouter 注册所有路由
func NewRouter(h *APIHandler) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/api/quota", h.AuthMiddleware(h.GetQuotaHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/history", h.AuthMiddleware(h.GetHistoryHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/files/{token}", h.GetFileHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs", h.AuthMiddleware(h.CreateSongHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/servers", h.AuthMiddleware(h.GetServersHandler)).Methods(http.MethodGet)
	router.HandleFunc("/ws/songs", h.AuthMiddleware(h.SongSocketHandler))

	return router
}
