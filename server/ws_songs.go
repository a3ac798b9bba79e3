package server

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sunobot/core/generation"
	"sunobot/logger"
	"sunobot/model"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// 推送给客户端的消息类型
const (
	SocketProgress = "progress"
	SocketAudio    = "audio"
	SocketResult   = "result"
)

// SocketRequest 客户端发送的生成请求
type SocketRequest struct {
	Prompt string `json:"prompt"`
}

// SocketMessage 服务端推送的消息
type SocketMessage struct {
	Type      string                `json:"type"`
	Message   string                `json:"message,omitempty"`
	URL       string                `json:"url,omitempty"`
	Name      string                `json:"name,omitempty"`
	Admission *generation.Admission `json:"admission,omitempty"`
	Result    *model.DeliveryResult `json:"result,omitempty"`
}

// socketSink 把进度和交付推送到 websocket
type socketSink struct {
	h      *APIHandler
	conn   *websocket.Conn
	userID int64
	mu     sync.Mutex
}

func (s *socketSink) send(msg SocketMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(msg)
}

func (s *socketSink) Progress(text string) {
	if err := s.send(SocketMessage{Type: SocketProgress, Message: text}); err != nil {
		logger.Warn("websocket progress write failed", logger.UserID(s.userID), logger.ErrorField(err))
	}
}

func (s *socketSink) Deliver(_ context.Context, path string) error {
	url, err := s.h.fileURL(s.userID, path)
	if err != nil {
		return err
	}
	return s.send(SocketMessage{Type: SocketAudio, URL: url, Name: filepath.Base(path)})
}

// SongSocketHandler WS /ws/songs?userId=，一个连接上可以依次提交多个请求
func (h *APIHandler) SongSocketHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &socketSink{h: h, conn: conn, userID: userID}
	for {
		var req SocketRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket closed", logger.UserID(userID), logger.ErrorField(err))
			}
			return
		}

		prompt := strings.TrimSpace(req.Prompt)
		if prompt == "" {
			if err := sink.send(SocketMessage{Type: SocketResult, Message: generation.MsgAllowed}); err != nil {
				return
			}
			continue
		}

		admission := h.runner.Admit(ctx, userID)
		if !admission.Allowed() {
			if err := sink.send(SocketMessage{Type: SocketResult, Message: admission.Message, Admission: &admission}); err != nil {
				return
			}
			continue
		}

		result := h.runner.Run(ctx, userID, prompt, sink)
		if err := sink.send(SocketMessage{Type: SocketResult, Message: result.Message, Result: &result}); err != nil {
			logger.Warn("websocket result write failed", logger.UserID(userID), logger.ErrorField(err))
			return
		}
	}
}
