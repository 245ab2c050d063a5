package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/favhub/internal/metrics"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	AccountStore    AccountStore
	FavoriteCounter FavoriteCounter
	Logger          *slog.Logger
	Gatherer        prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングを構成したchi.Routerを返す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	accountHandler := NewAccountHandler(deps.AccountStore, deps.FavoriteCounter, deps.Logger)

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheusスクレイプ
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// アカウント管理
	r.Route("/api/accounts", func(r chi.Router) {
		r.Post("/", accountHandler.Register)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", accountHandler.Get)
			r.Delete("/", accountHandler.Disable)
		})
	})

	return r
}
