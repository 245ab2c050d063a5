package model

import "errors"

// ErrDuplicateAccount は同一ユーザー・ネットワークの重複登録を示す。
var ErrDuplicateAccount = errors.New("同一ユーザー・ネットワークのアカウントが既に存在します")

// APIError はHTTP APIの統一エラーフォーマット。
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return e.Message
}
