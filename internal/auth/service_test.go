package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/authgate/internal/model"
)

// mockVerifier はVerifierのテスト用実装。
type mockVerifier struct {
	loginURLFunc      func(state string) string
	exchangeCodeFunc  func(ctx context.Context, code string) (*model.IdentityClaim, error)
	verifyIDTokenFunc func(ctx context.Context, idToken string) (*model.IdentityClaim, error)
}

func (m *mockVerifier) LoginURL(state string) string {
	return m.loginURLFunc(state)
}

func (m *mockVerifier) ExchangeCode(ctx context.Context, code string) (*model.IdentityClaim, error) {
	return m.exchangeCodeFunc(ctx, code)
}

func (m *mockVerifier) VerifyIDToken(ctx context.Context, idToken string) (*model.IdentityClaim, error) {
	return m.verifyIDTokenFunc(ctx, idToken)
}

// mockDirectory はDirectoryのテスト用実装。
type mockDirectory struct {
	getOrCreateFunc func(ctx context.Context, claim *model.IdentityClaim) (*model.User, error)
	findByIDFunc    func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockDirectory) GetOrCreate(ctx context.Context, claim *model.IdentityClaim) (*model.User, error) {
	return m.getOrCreateFunc(ctx, claim)
}

func (m *mockDirectory) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.findByIDFunc(ctx, id)
}

// mockCodec はTokenCodecのテスト用実装。
type mockCodec struct {
	issueFunc  func(subject string) (string, error)
	verifyFunc func(tokenString string) (string, error)
}

func (m *mockCodec) Issue(subject string) (string, error) {
	return m.issueFunc(subject)
}

func (m *mockCodec) Verify(tokenString string) (string, error) {
	return m.verifyFunc(tokenString)
}

// mockLoginMetrics はLoginMetricsのテスト用実装。
type mockLoginMetrics struct {
	successes []string
	failures  []string
	issued    int
}

func (m *mockLoginMetrics) RecordLoginSuccess(flow string) {
	m.successes = append(m.successes, flow)
}

func (m *mockLoginMetrics) RecordLoginFailure(flow, code string) {
	m.failures = append(m.failures, flow+"/"+code)
}

func (m *mockLoginMetrics) RecordTokenIssued() {
	m.issued++
}

// compile-time interface checks
var (
	_ Verifier     = (*mockVerifier)(nil)
	_ Directory    = (*mockDirectory)(nil)
	_ TokenCodec   = (*mockCodec)(nil)
	_ LoginMetrics = (*mockLoginMetrics)(nil)
)

func testUser() *model.User {
	return &model.User{
		ID:         "local-user-id",
		ExternalID: "google-sub-1",
		Email:      "user@gmail.com",
		Name:       "Test User",
		AvatarURL:  "https://example.com/a.png",
		Role:       model.RoleUser,
	}
}

func TestLoginWithCode_Success(t *testing.T) {
	claim := &model.IdentityClaim{
		ExternalID: "google-sub-1",
		Email:      "user@gmail.com",
		Name:       "Test User",
	}

	var issuedSubject string
	metrics := &mockLoginMetrics{}
	service := NewService(
		&mockVerifier{
			exchangeCodeFunc: func(ctx context.Context, code string) (*model.IdentityClaim, error) {
				if code != "auth-code" {
					t.Errorf("code = %q, want %q", code, "auth-code")
				}
				return claim, nil
			},
		},
		&mockDirectory{
			getOrCreateFunc: func(ctx context.Context, c *model.IdentityClaim) (*model.User, error) {
				if c != claim {
					t.Error("claim should be passed through to directory")
				}
				return testUser(), nil
			},
		},
		&mockCodec{
			issueFunc: func(subject string) (string, error) {
				issuedSubject = subject
				return "signed-session-token", nil
			},
		},
		metrics,
	)

	result, err := service.LoginWithCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("LoginWithCode() error = %v", err)
	}

	if result.Token != "signed-session-token" {
		t.Errorf("token = %q, want %q", result.Token, "signed-session-token")
	}
	if result.UserID != "local-user-id" {
		t.Errorf("userID = %q, want %q", result.UserID, "local-user-id")
	}
	if result.Email != "user@gmail.com" {
		t.Errorf("email = %q, want %q", result.Email, "user@gmail.com")
	}

	// トークンのsubjectはローカルユーザーID
	if issuedSubject != "local-user-id" {
		t.Errorf("issued subject = %q, want %q", issuedSubject, "local-user-id")
	}

	if len(metrics.successes) != 1 || metrics.successes[0] != FlowCode {
		t.Errorf("successes = %v, want [%s]", metrics.successes, FlowCode)
	}
	if metrics.issued != 1 {
		t.Errorf("issued = %d, want 1", metrics.issued)
	}
}

// 検証失敗時はユーザー作成もトークン発行も行われないことを検証
func TestLoginWithCode_VerifierFailure_NoUserNoToken(t *testing.T) {
	directoryCalled := false
	codecCalled := false
	metrics := &mockLoginMetrics{}

	service := NewService(
		&mockVerifier{
			exchangeCodeFunc: func(ctx context.Context, code string) (*model.IdentityClaim, error) {
				return nil, model.NewIdentityExchangeFailedError()
			},
		},
		&mockDirectory{
			getOrCreateFunc: func(ctx context.Context, c *model.IdentityClaim) (*model.User, error) {
				directoryCalled = true
				return testUser(), nil
			},
		},
		&mockCodec{
			issueFunc: func(subject string) (string, error) {
				codecCalled = true
				return "token", nil
			},
		},
		metrics,
	)

	_, err := service.LoginWithCode(context.Background(), "bad-code")
	if err == nil {
		t.Fatal("expected error")
	}

	if directoryCalled {
		t.Error("directory should not be called when verification fails")
	}
	if codecCalled {
		t.Error("codec should not be called when verification fails")
	}
	if metrics.issued != 0 {
		t.Errorf("issued = %d, want 0", metrics.issued)
	}
	if len(metrics.failures) != 1 || metrics.failures[0] != FlowCode+"/"+model.ErrCodeIdentityExchangeFailed {
		t.Errorf("failures = %v", metrics.failures)
	}

	// 元のAPIErrorがラップ越しに取り出せること
	apiErr, ok := model.AsAPIError(err)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeIdentityExchangeFailed {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeIdentityExchangeFailed)
	}
}

func TestLoginWithIDToken_Success(t *testing.T) {
	metrics := &mockLoginMetrics{}
	service := NewService(
		&mockVerifier{
			verifyIDTokenFunc: func(ctx context.Context, idToken string) (*model.IdentityClaim, error) {
				return &model.IdentityClaim{ExternalID: "google-sub-1"}, nil
			},
		},
		&mockDirectory{
			getOrCreateFunc: func(ctx context.Context, c *model.IdentityClaim) (*model.User, error) {
				return testUser(), nil
			},
		},
		&mockCodec{
			issueFunc: func(subject string) (string, error) {
				return "mobile-session-token", nil
			},
		},
		metrics,
	)

	result, err := service.LoginWithIDToken(context.Background(), "valid-id-token")
	if err != nil {
		t.Fatalf("LoginWithIDToken() error = %v", err)
	}
	if result.Token != "mobile-session-token" {
		t.Errorf("token = %q, want %q", result.Token, "mobile-session-token")
	}
	if len(metrics.successes) != 1 || metrics.successes[0] != FlowIDToken {
		t.Errorf("successes = %v, want [%s]", metrics.successes, FlowIDToken)
	}
}

// IDトークン拒否時（aud不一致など）にユーザーもトークンも作られないことを検証
func TestLoginWithIDToken_Rejected_NoSideEffects(t *testing.T) {
	directoryCalled := false
	metrics := &mockLoginMetrics{}

	service := NewService(
		&mockVerifier{
			verifyIDTokenFunc: func(ctx context.Context, idToken string) (*model.IdentityClaim, error) {
				return nil, model.NewInvalidIdentityTokenError()
			},
		},
		&mockDirectory{
			getOrCreateFunc: func(ctx context.Context, c *model.IdentityClaim) (*model.User, error) {
				directoryCalled = true
				return testUser(), nil
			},
		},
		&mockCodec{},
		metrics,
	)

	_, err := service.LoginWithIDToken(context.Background(), "foreign-aud-token")
	if err == nil {
		t.Fatal("expected error")
	}
	if directoryCalled {
		t.Error("directory should not be called for a rejected id token")
	}
	if len(metrics.failures) != 1 || metrics.failures[0] != FlowIDToken+"/"+model.ErrCodeInvalidIdentityToken {
		t.Errorf("failures = %v", metrics.failures)
	}
}

// ディレクトリ解決に失敗した場合、トークンは発行されないことを検証
func TestLoginWithCode_DirectoryFailure_NoToken(t *testing.T) {
	codecCalled := false
	metrics := &mockLoginMetrics{}

	service := NewService(
		&mockVerifier{
			exchangeCodeFunc: func(ctx context.Context, code string) (*model.IdentityClaim, error) {
				return &model.IdentityClaim{ExternalID: "google-sub-1"}, nil
			},
		},
		&mockDirectory{
			getOrCreateFunc: func(ctx context.Context, c *model.IdentityClaim) (*model.User, error) {
				return nil, errors.New("database is down")
			},
		},
		&mockCodec{
			issueFunc: func(subject string) (string, error) {
				codecCalled = true
				return "token", nil
			},
		},
		metrics,
	)

	_, err := service.LoginWithCode(context.Background(), "auth-code")
	if err == nil {
		t.Fatal("expected error")
	}
	if codecCalled {
		t.Error("codec should not be called when user resolution fails")
	}
	// APIError以外の失敗はINTERNAL_ERRORとして記録される
	if len(metrics.failures) != 1 || metrics.failures[0] != FlowCode+"/"+model.ErrCodeInternal {
		t.Errorf("failures = %v", metrics.failures)
	}
}

func TestUserByID_Found(t *testing.T) {
	service := NewService(nil, &mockDirectory{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			if id != "local-user-id" {
				t.Errorf("id = %q, want %q", id, "local-user-id")
			}
			return testUser(), nil
		},
	}, nil, &mockLoginMetrics{})

	user, err := service.UserByID(context.Background(), "local-user-id")
	if err != nil {
		t.Fatalf("UserByID() error = %v", err)
	}
	if user.Email != "user@gmail.com" {
		t.Errorf("email = %q, want %q", user.Email, "user@gmail.com")
	}
}

// subjectに対応するユーザーが存在しない場合（削除済みなど）はUserNotFoundになることを検証
func TestUserByID_NotFound(t *testing.T) {
	service := NewService(nil, &mockDirectory{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}, nil, &mockLoginMetrics{})

	_, err := service.UserByID(context.Background(), "deleted-user-id")
	apiErr, ok := model.AsAPIError(err)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeUserNotFound)
	}
}

func TestLoginURL_Delegates(t *testing.T) {
	service := NewService(&mockVerifier{
		loginURLFunc: func(state string) string {
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}, nil, nil, &mockLoginMetrics{})

	url := service.LoginURL("xyz")
	if url != "https://accounts.google.com/o/oauth2/auth?state=xyz" {
		t.Errorf("unexpected url: %q", url)
	}
}
