package generation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "My Song!", want: "My_Song"},
		{in: "AC/DC: Live?", want: "AC_DC__Live"},
		{in: `back\slash*`, want: "back_slash"},
		{in: "  padded  ", want: "padded"},
		{in: "Café del Mar", want: "Café_del_Mar"},
		{in: "夜曲", want: "夜曲"},
		{in: "..", want: unknownTitle},
		{in: "?*!", want: unknownTitle},
		{in: "", want: unknownTitle},
		{in: "v1.2-final", want: "v1.2-final"},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeTitle(tc.in))
		})
	}
}

func TestSanitizeTitleTruncates(t *testing.T) {
	got := SanitizeTitle(strings.Repeat("a", 500))
	assert.Len(t, got, maxTitleRunes)
}
