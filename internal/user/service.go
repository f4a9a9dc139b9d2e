// Package user は外部identityとローカルユーザーの対応付けを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/repository"
)

// Service はユーザーディレクトリのビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	now      func() time.Time // テスト用に差し替え可能
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{
		userRepo: userRepo,
		now:      time.Now,
	}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。副作用はない。
func (s *Service) FindByID(ctx context.Context, id string) (*model.User, error) {
	return s.userRepo.FindByID(ctx, id)
}

// FindByExternalID はプロバイダーのsubでユーザーを検索する。
// 見つからない場合はnilを返す。副作用はない。
func (s *Service) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return s.userRepo.FindByExternalID(ctx, externalID)
}

// GetOrCreate はclaimに対応するユーザーを返す。存在しない場合は新規作成する。
// 既存ユーザーはそのまま返し、プロファイルの再同期は行わない（first-write-wins）。
// 同一identityの初回ログインが同時に走った場合、一意制約で敗れた側は
// 勝者の行を再取得して返す。
func (s *Service) GetOrCreate(ctx context.Context, claim *model.IdentityClaim) (*model.User, error) {
	existing, err := s.userRepo.FindByExternalID(ctx, claim.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external ID: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := s.now()
	newUser := &model.User{
		ID:         uuid.New().String(),
		ExternalID: claim.ExternalID,
		Email:      claim.Email,
		Name:       claim.Name,
		AvatarURL:  claim.AvatarURL,
		Role:       model.RoleUser,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.userRepo.Create(ctx, newUser)
	if err == nil {
		slog.Info("new user created",
			slog.String("user_id", newUser.ID),
			slog.String("email", newUser.Email),
		)
		return newUser, nil
	}

	if !repository.IsUniqueViolation(err) {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// 別の書き込みが勝った。勝者の行を再取得する。
	slog.Info("directory insert conflict, re-fetching winner",
		slog.String("external_id", claim.ExternalID),
	)
	winner, err := s.userRepo.FindByExternalID(ctx, claim.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-fetch user after conflict: %w", err)
	}
	if winner == nil {
		// external_idではなくemailの一意制約に当たった等、再取得でも解決できない競合
		return nil, model.NewDirectoryConflictError()
	}
	return winner, nil
}
