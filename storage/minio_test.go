package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "history/42/My_Song.mp3", ObjectKey(42, "/var/audio/42/My_Song.mp3"))
	assert.Equal(t, "history/7/", UserPrefix(7))
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, FormatSize(tc.size))
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "audio/mpeg", ContentType("a.MP3"))
	assert.Equal(t, "application/octet-stream", ContentType("notes"))
}
