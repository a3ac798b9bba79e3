package suno

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"sunobot/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSendsFlags(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`[{"id":"a1","status":"submitted"},{"id":"a2","status":"submitted"}]`))
	}))
	defer srv.Close()

	artifacts, err := NewClient().Generate(context.Background(), srv.URL, "lofi rain")
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "a1", artifacts[0].ID)

	assert.Equal(t, "lofi rain", got["prompt"])
	assert.Equal(t, false, got["make_instrumental"])
	assert.Equal(t, false, got["wait_audio"])
}

func TestGenerateNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient().Generate(context.Background(), srv.URL, "x")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.ErrorContains(t, err, "502")
}

func TestGetAudioInfoPassesJoinedIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/get", r.URL.Path)
		assert.Equal(t, "a1,a2", r.URL.Query().Get("ids"))
		w.Write([]byte(`[{"id":"a1","status":"streaming","audio_url":"http://x/a.mp3","title":"T"}]`))
	}))
	defer srv.Close()

	artifacts, err := NewClient().GetAudioInfo(context.Background(), srv.URL, "a1,a2")
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, model.AudioArtifact{ID: "a1", Status: "streaming", AudioURL: "http://x/a.mp3", Title: "T"}, artifacts[0])
}

func TestGetLimit(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "positive", body: `{"credits_left": 10, "monthly_limit": 50}`, want: true},
		{name: "zero", body: `{"credits_left": 0}`, want: false},
		{name: "absent", body: `{"monthly_limit": 50}`, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/get_limit", r.URL.Path)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			info, err := NewClient().GetLimit(context.Background(), srv.URL)
			require.NoError(t, err)
			assert.Equal(t, tc.want, info.HasCredits())
		})
	}
}

func TestJoinIDs(t *testing.T) {
	key, ids := JoinIDs([]model.AudioArtifact{{ID: "a"}, {ID: ""}, {ID: "b"}})
	assert.Equal(t, "a,b", key)
	assert.Equal(t, []string{"a", "b"}, ids)
}
