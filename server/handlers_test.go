package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sunobot/core/auth"
	"sunobot/core/clock"
	"sunobot/core/generation"
	"sunobot/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "bot-token"

type fakeRunner struct {
	admission  generation.Admission
	progress   []string
	path       string
	result     model.DeliveryResult
	runs       int
	deliverErr error
}

func (f *fakeRunner) Admit(context.Context, int64) generation.Admission {
	return f.admission
}

func (f *fakeRunner) Run(ctx context.Context, _ int64, _ string, sink generation.Sink) model.DeliveryResult {
	f.runs++
	for _, p := range f.progress {
		sink.Progress(p)
	}
	if f.path != "" {
		if err := sink.Deliver(ctx, f.path); err != nil {
			f.deliverErr = err
			return model.DeliveryResult{Status: model.JobFailed, Message: generation.MsgSendFailed}
		}
	}
	return f.result
}

type fakeQuota struct {
	usage model.QuotaUsage
	err   error
}

func (f fakeQuota) Usage(context.Context, int64) (model.QuotaUsage, error) {
	return f.usage, f.err
}

type fakeHistory map[int64][]string

func (f fakeHistory) List(userID int64) []string { return f[userID] }

func (f fakeHistory) Contains(userID int64, path string) bool {
	for _, p := range f[userID] {
		if p == path {
			return true
		}
	}
	return false
}

type fakePool struct{}

func (fakePool) Servers() []model.Server {
	return []model.Server{{BaseURL: "http://s1"}, {BaseURL: "http://s2"}}
}

func (fakePool) ActiveIndex() int { return 1 }

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestHandler(runner *fakeRunner, q fakeQuota, hist fakeHistory) (*APIHandler, http.Handler) {
	h := NewAPIHandler(runner, q, hist, fakePool{}, testSecret, time.Hour, clock.NewFake(now))
	return h, NewRouter(h)
}

func do(t *testing.T, router http.Handler, method, target, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if authed {
		req.Header.Set("X-Bot-Token", testSecret)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	_, router := newTestHandler(&fakeRunner{}, fakeQuota{}, fakeHistory{})

	rec := do(t, router, http.MethodGet, "/api/servers", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/servers", nil)
	req.Header.Set("X-Bot-Token", "wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetServers(t *testing.T) {
	_, router := newTestHandler(&fakeRunner{}, fakeQuota{}, fakeHistory{})

	rec := do(t, router, http.MethodGet, "/api/servers", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ServersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Active)
	assert.Len(t, resp.Servers, 2)
}

func TestGetQuota(t *testing.T) {
	tests := []struct {
		name   string
		target string
		quota  fakeQuota
		code   int
	}{
		{name: "ok", target: "/api/quota?userId=5", quota: fakeQuota{usage: model.QuotaUsage{Count: 2, Ceiling: 5}}, code: http.StatusOK},
		{name: "missing user", target: "/api/quota", code: http.StatusBadRequest},
		{name: "bad user", target: "/api/quota?userId=abc", code: http.StatusBadRequest},
		{name: "store down", target: "/api/quota?userId=5", quota: fakeQuota{err: errors.New("redis down")}, code: http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, router := newTestHandler(&fakeRunner{}, tc.quota, fakeHistory{})
			rec := do(t, router, http.MethodGet, tc.target, "", true)
			assert.Equal(t, tc.code, rec.Code)
			if tc.code == http.StatusOK {
				var usage model.QuotaUsage
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
				assert.Equal(t, tc.quota.usage, usage)
			}
		})
	}
}

func TestHistoryLinksServeFiles(t *testing.T) {
	dir := t.TempDir()
	song := filepath.Join(dir, "My_Song.mp3")
	require.NoError(t, os.WriteFile(song, []byte("ID3audio"), 0644))

	_, router := newTestHandler(&fakeRunner{}, fakeQuota{}, fakeHistory{7: {song}})

	rec := do(t, router, http.MethodGet, "/api/history?userId=7", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var items []HistoryItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "My_Song.mp3", items[0].Name)
	assert.True(t, strings.HasPrefix(items[0].URL, "/api/files/"))

	// 下载链接不需要 X-Bot-Token
	rec = do(t, router, http.MethodGet, items[0].URL, "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ID3audio", rec.Body.String())
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
}

func TestFileTokenRejections(t *testing.T) {
	dir := t.TempDir()
	song := filepath.Join(dir, "a.mp3")
	require.NoError(t, os.WriteFile(song, []byte("x"), 0644))
	_, router := newTestHandler(&fakeRunner{}, fakeQuota{}, fakeHistory{7: {song}})

	evicted, err := auth.IssueFileToken([]byte(testSecret), 7, filepath.Join(dir, "old.mp3"), time.Hour, now)
	require.NoError(t, err)
	otherUser, err := auth.IssueFileToken([]byte(testSecret), 8, song, time.Hour, now)
	require.NoError(t, err)
	expired, err := auth.IssueFileToken([]byte(testSecret), 7, song, time.Hour, now.Add(-2*time.Hour))
	require.NoError(t, err)
	forged, err := auth.IssueFileToken([]byte("other-secret"), 7, song, time.Hour, now)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		code  int
	}{
		{name: "evicted file", token: evicted, code: http.StatusNotFound},
		{name: "other user's history", token: otherUser, code: http.StatusNotFound},
		{name: "expired", token: expired, code: http.StatusUnauthorized},
		{name: "wrong key", token: forged, code: http.StatusUnauthorized},
		{name: "garbage", token: "not-a-token", code: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, "/api/files/"+tc.token, "", false)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestCreateSongAdmissionFailures(t *testing.T) {
	tests := []struct {
		status generation.AdmitStatus
		code   int
	}{
		{generation.AdmitQuotaExceeded, http.StatusTooManyRequests},
		{generation.AdmitBusy, http.StatusConflict},
		{generation.AdmitNoServers, http.StatusServiceUnavailable},
		{generation.AdmitError, http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			runner := &fakeRunner{admission: generation.Admission{Status: tc.status, Message: "nope"}}
			_, router := newTestHandler(runner, fakeQuota{}, fakeHistory{})

			rec := do(t, router, http.MethodPost, "/api/songs", `{"userId":1,"prompt":"jazz"}`, true)
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, 0, runner.runs)

			var a generation.Admission
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
			assert.Equal(t, tc.status, a.Status)
		})
	}
}

func TestCreateSongValidation(t *testing.T) {
	runner := &fakeRunner{admission: generation.Admission{Status: generation.AdmitAllowed}}
	_, router := newTestHandler(runner, fakeQuota{}, fakeHistory{})

	for _, body := range []string{`{`, `{"userId":1,"prompt":"  "}`, `{"prompt":"jazz"}`} {
		rec := do(t, router, http.MethodPost, "/api/songs", body, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Equal(t, 0, runner.runs)
}

func TestCreateSongDelivered(t *testing.T) {
	runner := &fakeRunner{
		admission: generation.Admission{Status: generation.AdmitAllowed},
		progress:  []string{generation.MsgStillGenerating},
		path:      "/tmp/audio/1/My_Song.mp3",
		result:    model.DeliveryResult{Status: model.JobDelivered, Message: generation.MsgDelivered, Path: "/tmp/audio/1/My_Song.mp3"},
	}
	_, router := newTestHandler(runner, fakeQuota{}, fakeHistory{})

	rec := do(t, router, http.MethodPost, "/api/songs", `{"userId":1,"prompt":"jazz"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SongResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.JobDelivered, resp.Result.Status)
	assert.Equal(t, []string{generation.MsgStillGenerating}, resp.Progress)
	require.True(t, strings.HasPrefix(resp.URL, "/api/files/"))

	claims, err := auth.ParseFileToken([]byte(testSecret), strings.TrimPrefix(resp.URL, "/api/files/"), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, "/tmp/audio/1/My_Song.mp3", claims.Path)
}

func TestCreateSongFailedHasNoURL(t *testing.T) {
	runner := &fakeRunner{
		admission: generation.Admission{Status: generation.AdmitAllowed},
		result:    model.DeliveryResult{Status: model.JobTimedOut, Message: generation.MsgTimedOut},
	}
	_, router := newTestHandler(runner, fakeQuota{}, fakeHistory{})

	rec := do(t, router, http.MethodPost, "/api/songs", `{"userId":1,"prompt":"jazz"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SongResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.JobTimedOut, resp.Result.Status)
	assert.Empty(t, resp.URL)
}
