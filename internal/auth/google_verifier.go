package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/authgate/internal/model"
)

const (
	defaultGoogleAuthURL      = "https://accounts.google.com/o/oauth2/auth"
	defaultGoogleTokenURL     = "https://oauth2.googleapis.com/token"
	defaultGoogleUserInfoURL  = "https://www.googleapis.com/oauth2/v3/userinfo"
	defaultGoogleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

	defaultProviderTimeout = 10 * time.Second
)

// GoogleConfig はGoogle OAuthプロバイダーの設定。
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト・検証環境用にオーバーライド可能なURL
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	TokenInfoURL string

	// アウトバウンド呼び出しのタイムアウト。0の場合は10秒。
	Timeout time.Duration
}

// ProviderMetrics はプロバイダー呼び出しのメトリクス記録インターフェース。
type ProviderMetrics interface {
	RecordProviderRequest(endpoint string, statusCode int, duration time.Duration)
}

// GoogleVerifier はGoogleの外部資格情報を検証し、正規化したIdentityClaimを抽出する。
// 認可コード交換（Webフロー）とIDトークン検証（モバイルフロー）の2フローを提供する。
type GoogleVerifier struct {
	config  GoogleConfig
	client  *http.Client
	metrics ProviderMetrics
}

// NewGoogleVerifier はGoogleVerifierを生成する。
// 未指定のエンドポイントURLにはGoogle本番URLを使用する。
func NewGoogleVerifier(config GoogleConfig, metrics ProviderMetrics) *GoogleVerifier {
	if config.AuthURL == "" {
		config.AuthURL = defaultGoogleAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGoogleTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultGoogleUserInfoURL
	}
	if config.TokenInfoURL == "" {
		config.TokenInfoURL = defaultGoogleTokenInfoURL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultProviderTimeout
	}
	return &GoogleVerifier{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		metrics: metrics,
	}
}

// LoginURL はGoogle OAuthの同意画面URLを生成する。
// スコープにはopenid, email, profileを含む。
func (v *GoogleVerifier) LoginURL(state string) string {
	params := url.Values{
		"client_id":     {v.config.ClientID},
		"redirect_uri":  {v.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {"openid email profile"},
		"state":         {state},
	}
	return v.config.AuthURL + "?" + params.Encode()
}

// googleTokenResponse はGoogleのトークンエンドポイントのレスポンス。
type googleTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// googleUserInfo はGoogleのユーザー情報エンドポイントのレスポンス。
type googleUserInfo struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// googleTokenInfo はGoogleのtokeninfoエンドポイントのレスポンス。
type googleTokenInfo struct {
	Aud     string `json:"aud"`
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報からIdentityClaimを抽出する。
// 2回のアウトバウンド呼び出し（トークン交換→ユーザー情報取得）は順次実行される。
func (v *GoogleVerifier) ExchangeCode(ctx context.Context, code string) (*model.IdentityClaim, error) {
	tokenResp, err := v.exchangeToken(ctx, code)
	if err != nil {
		return nil, err
	}

	userInfo, err := v.fetchUserInfo(ctx, tokenResp.AccessToken)
	if err != nil {
		return nil, err
	}

	return &model.IdentityClaim{
		ExternalID: userInfo.Sub,
		Email:      userInfo.Email,
		Name:       userInfo.Name,
		AvatarURL:  userInfo.Picture,
	}, nil
}

// VerifyIDToken はGoogle発行のIDトークンをtokeninfoエンドポイントで検証し、
// IdentityClaimを抽出する。
// audクレームが自サービスのクライアントIDと一致しない場合は必ず失敗する。
// このチェックはトークンすり替えに対する唯一の防御であり、省略してはならない。
func (v *GoogleVerifier) VerifyIDToken(ctx context.Context, idToken string) (*model.IdentityClaim, error) {
	reqURL := v.config.TokenInfoURL + "?id_token=" + url.QueryEscape(idToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokeninfo request: %w", err)
	}

	body, status, err := v.do(req, "tokeninfo")
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		slog.Warn("tokeninfo returned non-success status",
			slog.Int("status", status),
			slog.String("body", string(body)),
		)
		return nil, model.NewInvalidIdentityTokenError()
	}

	var info googleTokenInfo
	if err := json.Unmarshal(body, &info); err != nil {
		slog.Warn("failed to parse tokeninfo response", slog.String("error", err.Error()))
		return nil, model.NewInvalidIdentityTokenError()
	}

	if info.Sub == "" || info.Aud != v.config.ClientID {
		slog.Warn("id token rejected",
			slog.String("aud", info.Aud),
			slog.Bool("empty_sub", info.Sub == ""),
		)
		return nil, model.NewInvalidIdentityTokenError()
	}

	return &model.IdentityClaim{
		ExternalID: info.Sub,
		Email:      info.Email,
		Name:       info.Name,
		AvatarURL:  info.Picture,
	}, nil
}

// exchangeToken は認可コードをアクセストークンに交換する。
func (v *GoogleVerifier) exchangeToken(ctx context.Context, code string) (*googleTokenResponse, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {v.config.ClientID},
		"client_secret": {v.config.ClientSecret},
		"redirect_uri":  {v.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, status, err := v.do(req, "token")
	if err != nil {
		return nil, err
	}

	var tokenResp googleTokenResponse
	if status == http.StatusOK {
		if err := json.Unmarshal(body, &tokenResp); err != nil {
			slog.Error("failed to parse token response", slog.String("error", err.Error()))
			return nil, model.NewIdentityExchangeFailedError()
		}
	}

	// ステータス異常時も含め、使えるアクセストークンが得られなければ交換失敗
	if tokenResp.AccessToken == "" {
		slog.Error("token exchange yielded no access token",
			slog.Int("status", status),
			slog.String("body", string(body)),
		)
		return nil, model.NewIdentityExchangeFailedError()
	}

	return &tokenResp, nil
}

// fetchUserInfo はアクセストークンでGoogleのユーザー情報を取得する。
func (v *GoogleVerifier) fetchUserInfo(ctx context.Context, accessToken string) (*googleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, status, err := v.do(req, "userinfo")
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		// 診断用にステータスとボディをログへ記録してから失敗させる
		slog.Error("user info fetch failed",
			slog.Int("status", status),
			slog.String("body", string(body)),
		)
		return nil, model.NewIdentityLookupFailedError()
	}

	var userInfo googleUserInfo
	if err := json.Unmarshal(body, &userInfo); err != nil {
		slog.Error("failed to parse user info response", slog.String("error", err.Error()))
		return nil, model.NewIdentityLookupFailedError()
	}

	if userInfo.Sub == "" {
		slog.Error("empty sub in user info response")
		return nil, model.NewIdentityLookupFailedError()
	}

	return &userInfo, nil
}

// do はプロバイダーへのHTTPリクエストを実行し、ボディとステータスを返す。
// ネットワークレベルの失敗はIdentityProviderUnreachableとして扱う。
func (v *GoogleVerifier) do(req *http.Request, endpoint string) ([]byte, int, error) {
	start := time.Now()
	resp, err := v.client.Do(req)
	if err != nil {
		v.metrics.RecordProviderRequest(endpoint, 0, time.Since(start))
		if errors.Is(err, context.Canceled) {
			return nil, 0, err
		}
		slog.Error("identity provider request failed",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return nil, 0, model.NewIdentityProviderUnreachableError()
	}
	defer resp.Body.Close()

	v.metrics.RecordProviderRequest(endpoint, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, model.NewIdentityProviderUnreachableError()
	}

	return body, resp.StatusCode, nil
}

// compile-time interface check
var _ Verifier = (*GoogleVerifier)(nil)
