package generation

import (
	"strings"
	"unicode"
)

const (
	unknownTitle  = "Unknown_Title"
	maxTitleRunes = 100
)

// SanitizeTitle 把后端返回的标题变成安全的文件名（不含扩展名）。
// 空格和路径分隔符变成下划线，其它标点直接去掉。
func SanitizeTitle(title string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(title) {
		if n >= maxTitleRunes {
			break
		}
		switch {
		case r == ' ' || r == '/' || r == '\\' || r == ':':
			b.WriteRune('_')
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.':
			b.WriteRune(r)
		default:
			continue
		}
		n++
	}

	// 去掉首尾的点，避免隐藏文件和 ".."
	name := strings.Trim(b.String(), ".")
	if name == "" {
		return unknownTitle
	}
	return name
}
