package util

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 身份声明由外部认证服务签发，hub 只校验签名与基本字段，从不发 token。
// 签名密钥通过 PAIR_JWT_SECRET 下发，与认证服务共享。

// ErrTokenInvalid 表示 token 签名非法、已过期或缺少必要声明。
var ErrTokenInvalid = errors.New("token is invalid")

// IdentityClaims 连接级身份声明。
type IdentityClaims struct {
	// UserUID 稳定用户标识
	UserUID string `json:"uid"`
	// CharIdent 本次连接的瞬态角色标识，写入 presence 供对端识别
	CharIdent string `json:"char_ident"`
	jwt.RegisteredClaims
}

func signingSecret() []byte {
	secret := os.Getenv("PAIR_JWT_SECRET")
	if secret == "" {
		secret = "dev-only-secret"
	}
	return []byte(secret)
}

// ParseClaims 解析并校验身份 token。
// 任何解析/签名/过期问题统一折叠为 ErrTokenInvalid，避免给探测者提示。
func ParseClaims(token string) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return signingSecret(), nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.UserUID == "" || claims.CharIdent == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// SignClaims 用共享密钥签发一个身份 token。
// 仅供本地调试工具使用（生产路径里 token 一律由外部认证服务签发）。
func SignClaims(userUID, charIdent string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &IdentityClaims{
		UserUID:   userUID,
		CharIdent: charIdent,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingSecret())
}
