package token

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("令牌无效或已过期")
	ErrRevokedToken = errors.New("令牌已注销")
)

// Claims 是登录令牌中携带的数据。Subject 为用户ID，ID(jti) 用于注销。
type Claims struct {
	jwt.RegisteredClaims
}

// Issuer 负责签发和校验HS256登录令牌，并记录已注销的令牌
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> 过期时间
}

// GenerateSecretKey 生成一个密码学安全的32字节随机密钥。
// 未配置密钥时使用，进程重启后旧令牌全部失效。
func GenerateSecretKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("无法生成安全的密钥: " + err.Error())
	}
	return key
}

func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	if len(secret) == 0 {
		secret = GenerateSecretKey()
	}
	return &Issuer{
		secret:  secret,
		ttl:     ttl,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
}

// Issue 为用户签发一个新令牌，返回令牌字符串和过期时间
func (i *Issuer) Issue(userID string) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("签发令牌失败: %w", err)
	}
	return signed, expires, nil
}

// Parse 校验签名、过期时间和注销状态
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("不支持的签名算法: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	i.mu.Lock()
	_, revoked := i.revoked[claims.ID]
	i.mu.Unlock()
	if revoked {
		return nil, ErrRevokedToken
	}
	return claims, nil
}

// Revoke 注销一个令牌直到它自然过期，同时清理已过期的记录
func (i *Issuer) Revoke(claims *Claims) {
	if claims == nil || claims.ID == "" {
		return
	}
	now := i.now()
	i.mu.Lock()
	defer i.mu.Unlock()
	for id, exp := range i.revoked {
		if exp.Before(now) {
			delete(i.revoked, id)
		}
	}
	if claims.ExpiresAt != nil {
		i.revoked[claims.ID] = claims.ExpiresAt.Time
	}
}
