// Package token はセッショントークンの発行と検証を提供する。
// トークンはHMAC-SHA256署名付きJWTで、サーバー側に状態を持たない。
// 有効性は署名と有効期限のみで決まり、失効リストは存在しない。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken はトークン検証失敗を表す。
// パース失敗・署名不一致・期限切れのいずれでも同じエラーを返し、
// 失敗理由を呼び出し元に区別させない。
var ErrInvalidToken = errors.New("invalid token")

// DefaultValidity はトークンの有効期間のデフォルト値。
const DefaultValidity = time.Hour

// Codec はセッショントークンの発行・検証を行う。
// 署名には対称鍵を使用する。I/Oは行わず、全操作は純粋。
type Codec struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time // テスト用に差し替え可能
}

// NewCodec はCodecを生成する。
// validityが0以下の場合はDefaultValidityを使用する。
func NewCodec(secret string, validity time.Duration) *Codec {
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &Codec{
		secret:   []byte(secret),
		validity: validity,
		now:      time.Now,
	}
}

// Issue はsubjectを埋め込んだ署名付きトークンを発行する。
// 有効期限は発行時刻 + validity。
func (c *Codec) Issue(subject string) (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.validity)),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証し、埋め込まれたsubjectを返す。
// いかなる検証失敗でもErrInvalidTokenを返す。
func (c *Codec) Verify(tokenString string) (string, error) {
	claims, err := c.parse(tokenString)
	if err != nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// ExtractSubject はトークンからsubjectを取り出す。
// Verifyと同じパース経路を通るため、無効なトークンからは取り出せない。
func (c *Codec) ExtractSubject(tokenString string) (string, error) {
	return c.Verify(tokenString)
}

// parse はトークンをパースし、署名アルゴリズムがHMAC系であることを確認する。
func (c *Codec) parse(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now() }))
	if err != nil {
		return nil, err
	}
	if !t.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}
