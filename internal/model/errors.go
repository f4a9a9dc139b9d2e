// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// プロバイダーのレスポンスボディ等の内部詳細はログのみに記録し、ここには含めない。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, provider, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeIdentityExchangeFailed      = "IDENTITY_EXCHANGE_FAILED"
	ErrCodeIdentityLookupFailed        = "IDENTITY_LOOKUP_FAILED"
	ErrCodeInvalidIdentityToken        = "INVALID_IDENTITY_TOKEN"
	ErrCodeIdentityProviderUnreachable = "IDENTITY_PROVIDER_UNREACHABLE"
	ErrCodeDirectoryConflict           = "DIRECTORY_CONFLICT"
	ErrCodeInvalidToken                = "INVALID_TOKEN"
	ErrCodeUserNotFound                = "USER_NOT_FOUND"
	ErrCodeInternal                    = "INTERNAL_ERROR"
)

// AsAPIError はエラーチェーンから*APIErrorを取り出す。
// 見つからない場合はnilとfalseを返す。
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// NewIdentityExchangeFailedError は認可コード交換でアクセストークンを取得できなかった場合のエラーを生成する。
func NewIdentityExchangeFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityExchangeFailed,
		Message:  "Googleアクセストークンの取得に失敗しました。",
		Category: "auth",
		Action:   "ログインをやり直してください。認可コードは一度しか使用できません。",
	}
}

// NewIdentityLookupFailedError はユーザー情報エンドポイントの呼び出しが失敗した場合のエラーを生成する。
func NewIdentityLookupFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityLookupFailed,
		Message:  "Googleユーザー情報の取得に失敗しました。",
		Category: "auth",
		Action:   "ログインをやり直してください。",
	}
}

// NewInvalidIdentityTokenError はIDトークンの検証に失敗した場合のエラーを生成する。
// 検証失敗とaudience不一致のどちらでも同じエラーを返す。
func NewInvalidIdentityTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidIdentityToken,
		Message:  "無効なGoogle IDトークンです。",
		Category: "auth",
		Action:   "アプリからログインをやり直してください。",
	}
}

// NewIdentityProviderUnreachableError はプロバイダーへのネットワーク到達に失敗した場合のエラーを生成する。
func NewIdentityProviderUnreachableError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityProviderUnreachable,
		Message:  "認証プロバイダーに接続できませんでした。",
		Category: "provider",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewDirectoryConflictError はユーザー作成の一意制約競合を表すエラーを生成する。
// 通常は再取得で解決されるため、呼び出し元まで到達するのは再取得も失敗した場合のみ。
func NewDirectoryConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeDirectoryConflict,
		Message:  "ユーザー登録が競合しました。",
		Category: "system",
		Action:   "再度ログインしてください。",
	}
}

// NewInvalidTokenError はセッショントークンの検証に失敗した場合のエラーを生成する。
// パース失敗・署名不一致・期限切れを区別せず同じエラーを返す。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "無効なトークンです。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
