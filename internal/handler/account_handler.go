// Package handler はアカウント管理APIのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/favhub/internal/model"
)

// AccountStore はアカウントハンドラーが必要とする永続化インターフェース。
// repository.AccountRepositoryが実装する。
type AccountStore interface {
	Create(ctx context.Context, account *model.Account) error
	FindByID(ctx context.Context, id string) (*model.Account, error)
	Disable(ctx context.Context, id string) error
}

// FavoriteCounter はアカウント詳細に付加するお気に入り件数の取得インターフェース。
type FavoriteCounter interface {
	CountByAccount(ctx context.Context, accountID string) (int, error)
}

// AccountHandler はアカウント管理のHTTPハンドラー。
type AccountHandler struct {
	store   AccountStore
	counter FavoriteCounter
	logger  *slog.Logger
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(store AccountStore, counter FavoriteCounter, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		store:   store,
		counter: counter,
		logger:  logger,
	}
}

// registerAccountRequest はアカウント登録リクエストのボディ。
type registerAccountRequest struct {
	UserID            string `json:"user_id"`
	Network           string `json:"network"`
	AccessToken       string `json:"access_token"`
	AccessTokenSecret string `json:"access_token_secret"`
	Username          string `json:"username"`
	ProfileName       string `json:"profile_name"`
	ProfileEmail      string `json:"profile_email"`
	ProfileAvatarURL  string `json:"profile_avatar_url"`
}

// accountResponse はアカウント情報のAPIレスポンス。
// 資格情報は含めない。
type accountResponse struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Network       string     `json:"network"`
	Mode          string     `json:"mode"`
	ErrorCount    int        `json:"error_count"`
	Disabled      bool       `json:"disabled"`
	LastPolledAt  *time.Time `json:"last_polled_at,omitempty"`
	NextPollAt    time.Time  `json:"next_poll_at"`
	FavoriteCount int        `json:"favorite_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toAccountResponse(account *model.Account, favoriteCount int) accountResponse {
	return accountResponse{
		ID:            account.ID,
		UserID:        account.UserID,
		Network:       string(account.Network),
		Mode:          string(account.Mode),
		ErrorCount:    account.ErrorCount,
		Disabled:      account.Disabled,
		LastPolledAt:  account.LastPolledAt,
		NextPollAt:    account.NextPollAt,
		FavoriteCount: favoriteCount,
		CreatedAt:     account.CreatedAt,
	}
}

// Register はアカウント登録を処理する。
// POST /api/accounts
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, &model.APIError{
			Code:    "INVALID_REQUEST",
			Message: "リクエストボディの解析に失敗しました。",
		})
		return
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, &model.APIError{
			Code:    "INVALID_REQUEST",
			Message: "user_idが空です。",
		})
		return
	}

	network := model.Network(req.Network)
	if !network.IsValid() {
		writeError(w, http.StatusBadRequest, &model.APIError{
			Code:    "INVALID_NETWORK",
			Message: "未対応のネットワークです。",
		})
		return
	}

	now := time.Now()
	account := &model.Account{
		ID:      uuid.New().String(),
		UserID:  req.UserID,
		Network: network,
		Credentials: model.Credentials{
			AccessToken:       req.AccessToken,
			AccessTokenSecret: req.AccessTokenSecret,
			Username:          req.Username,
		},
		// 新規アカウントはinitialモードで即時ポーリング対象になる
		Mode:       model.ModeInitial,
		NextPollAt: now,
		Profile: model.UserProfile{
			Name:      req.ProfileName,
			Email:     req.ProfileEmail,
			AvatarURL: secureProfileAvatarURL(req.ProfileAvatarURL),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.Create(r.Context(), account); err != nil {
		if errors.Is(err, model.ErrDuplicateAccount) {
			writeError(w, http.StatusConflict, &model.APIError{
				Code:    "ACCOUNT_EXISTS",
				Message: "同一ユーザー・ネットワークのアカウントが既に存在します。",
			})
			return
		}
		h.logger.Error("アカウントの作成に失敗しました",
			slog.String("user_id", req.UserID),
			slog.String("network", req.Network),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, &model.APIError{
			Code:    "INTERNAL_ERROR",
			Message: "アカウントの作成に失敗しました。",
		})
		return
	}

	h.logger.Info("アカウントを登録しました",
		slog.String("account_id", account.ID),
		slog.String("network", req.Network),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toAccountResponse(account, 0))
}

// Get はアカウント詳細を取得する。
// GET /api/accounts/:id
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	account, err := h.store.FindByID(r.Context(), accountID)
	if err != nil {
		h.logger.Error("アカウントの取得に失敗しました",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, &model.APIError{
			Code:    "INTERNAL_ERROR",
			Message: "アカウントの取得に失敗しました。",
		})
		return
	}

	if account == nil {
		writeError(w, http.StatusNotFound, &model.APIError{
			Code:    "ACCOUNT_NOT_FOUND",
			Message: "指定されたアカウントが見つかりません。",
		})
		return
	}

	count, err := h.counter.CountByAccount(r.Context(), accountID)
	if err != nil {
		h.logger.Error("お気に入り件数の取得に失敗しました",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		count = 0
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toAccountResponse(account, count))
}

// Disable はアカウントを無効化する。
// DELETE /api/accounts/:id
func (h *AccountHandler) Disable(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	account, err := h.store.FindByID(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, &model.APIError{
			Code:    "INTERNAL_ERROR",
			Message: "アカウントの取得に失敗しました。",
		})
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, &model.APIError{
			Code:    "ACCOUNT_NOT_FOUND",
			Message: "指定されたアカウントが見つかりません。",
		})
		return
	}

	if err := h.store.Disable(r.Context(), accountID); err != nil {
		h.logger.Error("アカウントの無効化に失敗しました",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, &model.APIError{
			Code:    "INTERNAL_ERROR",
			Message: "アカウントの無効化に失敗しました。",
		})
		return
	}

	h.logger.Info("アカウントを無効化しました",
		slog.String("account_id", accountID),
	)

	w.WriteHeader(http.StatusNoContent)
}

// writeError は統一エラーフォーマットでレスポンスを書き込む。
func writeError(w http.ResponseWriter, status int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiErr)
}

// secureProfileAvatarURL はプロフィールのアバターURLをhttpsスキームへ正規化する。
func secureProfileAvatarURL(u string) string {
	if strings.HasPrefix(strings.ToLower(u), "http://") {
		return "https://" + u[len("http://"):]
	}
	return u
}
