package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/favhub/internal/connector"
	"github.com/hitoshi/favhub/internal/metrics"
	"github.com/hitoshi/favhub/internal/model"
	"github.com/hitoshi/favhub/internal/repository"
)

// Poller は個別アカウントの収集サイクルの実行と永続化を行う。
// コネクタの実行、お気に入りの追記、収集状態の保存、
// ネットワークごとの送信レート制限を担う。
type Poller struct {
	accountRepo  repository.AccountRepository
	favoriteRepo repository.FavoriteRepository
	factory      *connector.Factory
	collector    metrics.MetricsCollector
	logger       *slog.Logger
	limiters     map[model.Network]*rate.Limiter
	timeout      time.Duration
	delays       Delays
}

// NewPoller はPollerの新しいインスタンスを生成する。
// ratePerSecとburstは全ネットワーク共通のレート制限設定で、
// リミッター自体はネットワークごとに独立している。
func NewPoller(
	accountRepo repository.AccountRepository,
	favoriteRepo repository.FavoriteRepository,
	factory *connector.Factory,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
	delays Delays,
	ratePerSec float64,
	burst int,
) *Poller {
	limiters := make(map[model.Network]*rate.Limiter)
	for _, network := range []model.Network{
		model.NetworkGithub,
		model.NetworkTwitter,
		model.NetworkStackoverflow,
	} {
		limiters[network] = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}

	return &Poller{
		accountRepo:  accountRepo,
		favoriteRepo: favoriteRepo,
		factory:      factory,
		collector:    collector,
		logger:       logger,
		limiters:     limiters,
		timeout:      timeout,
		delays:       delays,
	}
}

// Poll はアカウントの収集サイクルを1回実行し、結果を永続化する。
// お気に入りの追記に成功してから収集状態を保存する。追記に失敗した場合は
// 状態を保存せず、アカウントは旧状態のままポーリング対象に残る。
func (p *Poller) Poll(ctx context.Context, account *model.Account) error {
	start := time.Now()
	network := string(account.Network)

	// ネットワークごとの送信レート制限
	if limiter, ok := p.limiters[account.Network]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("レート制限の待機が中断されました: %w", err)
		}
	}

	conn, err := p.factory.ForNetwork(account.Network)
	if err != nil {
		p.collector.RecordPollFailure(network, "unknownNetwork")
		return fmt.Errorf("コネクタの解決に失敗: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	updated, favorites, runErr := conn.Run(runCtx, *account, account.Profile)

	duration := time.Since(start)
	p.collector.RecordPollLatency(network, duration)

	if runErr != nil {
		reason := "error"
		var cycleErr *connector.CycleError
		if errors.As(runErr, &cycleErr) {
			reason = cycleErr.Directive.String()
			if cycleErr.StatusCode > 0 {
				p.collector.RecordHTTPStatus(network, cycleErr.StatusCode)
			}
			if cycleErr.Quota >= 0 {
				p.collector.RecordQuotaRemaining(network, cycleErr.Quota)
			}
		}
		p.collector.RecordPollFailure(network, reason)

		p.logger.Warn("収集サイクルが失敗しました",
			slog.String("account_id", account.ID),
			slog.String("network", network),
			slog.String("reason", reason),
			slog.String("error", runErr.Error()),
		)

		return p.saveState(ctx, updated, start)
	}

	p.collector.RecordHTTPStatus(network, http.StatusOK)

	// お気に入りを先に追記し、成功してから状態を進める。
	// 逆順だとクラッシュ時にアイテムを取りこぼす。重複はAppend側で冪等に弾かれる。
	inserted, err := p.favoriteRepo.Append(ctx, favorites)
	if err != nil {
		p.collector.RecordPollFailure(network, "persistence")
		p.logger.Error("お気に入りの追記に失敗しました",
			slog.String("account_id", account.ID),
			slog.String("network", network),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("お気に入りの追記に失敗: %w", err)
	}

	p.collector.RecordPollSuccess(network)
	p.collector.RecordFavoritesIngested(network, inserted)

	p.logger.Info("収集サイクルが完了しました",
		slog.String("account_id", account.ID),
		slog.String("network", network),
		slog.String("mode", string(updated.Mode)),
		slog.Int("favorites_fetched", len(favorites)),
		slog.Int("favorites_inserted", inserted),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return p.saveState(ctx, updated, start)
}

// saveState は次回実行時刻を計算して収集状態を保存する。
func (p *Poller) saveState(ctx context.Context, account model.Account, now time.Time) error {
	account.NextPollAt = p.delays.Next(account, now)

	if err := p.accountRepo.Save(ctx, &account); err != nil {
		p.logger.Error("収集状態の保存に失敗しました",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("収集状態の保存に失敗: %w", err)
	}
	return nil
}
