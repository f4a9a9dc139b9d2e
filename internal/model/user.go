// Package model はドメインモデルを定義する。
package model

import "time"

// RoleUser は新規ユーザーに付与されるデフォルトのロール。
// ロール昇格の仕組みは存在しない。
const RoleUser = "USER"

// User はGoogleログインで登録されたサービス利用ユーザーを表す。
// ExternalIDはGoogle OAuth2のsubクレームで、作成後は不変。
// 同一ExternalIDのUserは常に1件のみ存在する（DBのユニーク制約で保証）。
type User struct {
	ID         string
	ExternalID string
	Email      string
	Name       string
	AvatarURL  string
	Role       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IdentityClaim は検証済みの外部資格情報から抽出した正規化済みID情報を表す。
// ログイン1回ごとに生成され、永続化はされない。
type IdentityClaim struct {
	ExternalID string // プロバイダー固有のsub
	Email      string
	Name       string
	AvatarURL  string
}

// SessionResult はログイン成功時にクライアントへ返すセッション情報。
// Tokenは署名付き・期限付きのベアラートークン。
type SessionResult struct {
	Token     string
	UserID    string
	Email     string
	Name      string
	AvatarURL string
}
