package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/model"
)

// successResponse はAPIレスポンスの統一エンベロープ。
type successResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

// writeSuccess は統一エンベロープでJSONレスポンスを書き込む。
func writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(successResponse{Success: true, Data: data})
}

// writeError はエラーを統一フォーマットでレスポンスに変換する。
// 型付きAPIError以外（内部エラー）は詳細をログのみに記録し、一般的なメッセージを返す。
func writeError(w http.ResponseWriter, err error) {
	if apiErr, ok := model.AsAPIError(err); ok {
		middleware.WriteErrorResponse(w, middleware.StatusForError(apiErr), apiErr)
		return
	}
	slog.Error("unexpected error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// sessionPayload はログイン成功時のレスポンスボディ。
type sessionPayload struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// newSessionPayload はSessionResultをレスポンスボディに変換する。
func newSessionPayload(result *model.SessionResult) sessionPayload {
	return sessionPayload{
		Token:     result.Token,
		UserID:    result.UserID,
		Email:     result.Email,
		Name:      result.Name,
		AvatarURL: result.AvatarURL,
	}
}
