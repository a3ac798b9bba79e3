package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken token 无效或已过期
var ErrInvalidToken = errors.New("invalid file token")

const fileTokenIssuer = "sunobot"

// FileClaims 允许前端在有效期内下载某个用户的一个历史文件
type FileClaims struct {
	UserID int64  `json:"uid"`
	Path   string `json:"path"`
	jwt.RegisteredClaims
}

// IssueFileToken 签发文件下载 token（HS256）
func IssueFileToken(secret []byte, userID int64, path string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("empty signing secret")
	}
	claims := FileClaims{
		UserID: userID,
		Path:   path,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    fileTokenIssuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign file token: %w", err)
	}
	return signed, nil
}

// ParseFileToken 校验签名、签发者和有效期
func ParseFileToken(secret []byte, token string, now time.Time) (*FileClaims, error) {
	claims := &FileClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(fileTokenIssuer),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Path == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
