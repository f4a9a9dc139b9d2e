// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/authgate/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByExternalID はプロバイダーのsubでユーザーを検索する。
	// 見つからない場合はnilを返す。副作用はない。
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)

	// Create はユーザーを作成する。
	// external_idまたはemailの一意制約に違反した場合、
	// IsUniqueViolationがtrueを返すエラーを返す。
	Create(ctx context.Context, user *model.User) error
}
