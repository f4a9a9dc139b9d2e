// Package auth はGoogleログインの認証フローとセッショントークン発行を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/authgate/internal/model"
)

// ログインフローの識別子。メトリクスのラベルに使用する。
const (
	FlowCode    = "authorization_code"
	FlowIDToken = "id_token"
)

// Verifier は外部資格情報の検証インターフェース。
// 将来的に複数IdPに対応するための抽象化。
type Verifier interface {
	// LoginURL はOAuth同意画面のURLを生成する。
	LoginURL(state string) string
	// ExchangeCode は認可コードを検証し、正規化したIdentityClaimを返す（Webフロー）。
	ExchangeCode(ctx context.Context, code string) (*model.IdentityClaim, error)
	// VerifyIDToken はIDトークンを検証し、正規化したIdentityClaimを返す（モバイルフロー）。
	VerifyIDToken(ctx context.Context, idToken string) (*model.IdentityClaim, error)
}

// Directory は外部identityとローカルユーザーの対応付けインターフェース。
type Directory interface {
	// GetOrCreate はclaimに対応するユーザーを返す。存在しない場合は新規作成する。
	GetOrCreate(ctx context.Context, claim *model.IdentityClaim) (*model.User, error)
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// TokenCodec はセッショントークンの発行・検証インターフェース。
type TokenCodec interface {
	// Issue はsubjectを埋め込んだ署名付きトークンを発行する。
	Issue(subject string) (string, error)
	// Verify はトークンを検証し、subjectを返す。
	Verify(tokenString string) (string, error)
}

// LoginMetrics はログイン処理のメトリクス記録インターフェース。
type LoginMetrics interface {
	RecordLoginSuccess(flow string)
	RecordLoginFailure(flow, code string)
	RecordTokenIssued()
}

// Service は認証オーケストレーター。
// Verifier → Directory → TokenCodec の順に合成し、2つのログインフローを提供する。
// ログイン1回ごとに独立して実行され、呼び出し間で状態は持たない。
type Service struct {
	verifier  Verifier
	directory Directory
	codec     TokenCodec
	metrics   LoginMetrics
}

// NewService はServiceを生成する。
func NewService(verifier Verifier, directory Directory, codec TokenCodec, metrics LoginMetrics) *Service {
	return &Service{
		verifier:  verifier,
		directory: directory,
		codec:     codec,
		metrics:   metrics,
	}
}

// LoginURL はOAuth同意画面のURLを生成する。
func (s *Service) LoginURL(state string) string {
	return s.verifier.LoginURL(state)
}

// LoginWithCode は認可コードによるログイン（Webフロー）を処理する。
// 検証失敗時はユーザー作成もトークン発行も行わず、即座に失敗を返す。
func (s *Service) LoginWithCode(ctx context.Context, code string) (*model.SessionResult, error) {
	claim, err := s.verifier.ExchangeCode(ctx, code)
	if err != nil {
		s.recordFailure(FlowCode, err)
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return s.finishLogin(ctx, FlowCode, claim)
}

// LoginWithIDToken はIDトークンによるログイン（モバイルフロー）を処理する。
// 検証失敗時はユーザー作成もトークン発行も行わず、即座に失敗を返す。
func (s *Service) LoginWithIDToken(ctx context.Context, idToken string) (*model.SessionResult, error) {
	claim, err := s.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		s.recordFailure(FlowIDToken, err)
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}
	return s.finishLogin(ctx, FlowIDToken, claim)
}

// UserByID は認証済みprincipal（トークンのsubject）からユーザーを取得する。
// トークン検証自体はミドルウェア側で行われる。
func (s *Service) UserByID(ctx context.Context, id string) (*model.User, error) {
	user, err := s.directory.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// finishLogin は検証済みclaimからユーザー解決とトークン発行を行い、レスポンスを組み立てる。
// トークンのsubjectには常にユーザーIDを使用する。emailやroleは埋め込まない。
func (s *Service) finishLogin(ctx context.Context, flow string, claim *model.IdentityClaim) (*model.SessionResult, error) {
	user, err := s.directory.GetOrCreate(ctx, claim)
	if err != nil {
		s.recordFailure(flow, err)
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	sessionToken, err := s.codec.Issue(user.ID)
	if err != nil {
		s.recordFailure(flow, err)
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	s.metrics.RecordTokenIssued()
	s.metrics.RecordLoginSuccess(flow)
	slog.Info("user logged in",
		slog.String("flow", flow),
		slog.String("user_id", user.ID),
	)

	return &model.SessionResult{
		Token:     sessionToken,
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
	}, nil
}

// recordFailure は失敗メトリクスをエラーコード付きで記録する。
func (s *Service) recordFailure(flow string, err error) {
	code := model.ErrCodeInternal
	if apiErr, ok := model.AsAPIError(err); ok {
		code = apiErr.Code
	}
	s.metrics.RecordLoginFailure(flow, code)
}
