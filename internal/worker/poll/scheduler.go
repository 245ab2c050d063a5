package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/favhub/internal/model"
	"github.com/hitoshi/favhub/internal/repository"
)

// AccountPollerService はアカウントポーリングの実行インターフェース。
type AccountPollerService interface {
	// Poll は指定アカウントの収集サイクルを実行し、結果を永続化する。
	Poll(ctx context.Context, account *model.Account) error
}

// Scheduler はアカウントポーリングのスケジューリングと並列制御を行う。
// ティッカーでポーリング対象アカウントを取得し、semaphoreパターンで
// 最大並列数を制御しながら実行する。同一アカウントの実行は
// 実行中セットにより直列化される。
type Scheduler struct {
	accountRepo    repository.AccountRepository
	poller         AccountPollerService
	logger         *slog.Logger
	maxConcurrency int

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	accountRepo repository.AccountRepository,
	poller AccountPollerService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		accountRepo:    accountRepo,
		poller:         poller,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		inflight:       make(map[string]struct{}),
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("ポーリングスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("ポーリングサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ポーリングスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("ポーリングサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はポーリング対象アカウントを1回取得し、並列で収集を実行する。
// semaphoreパターンで最大並列数を制御する。前のティックで実行中の
// アカウントはスキップされる。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	// ポーリング対象アカウントを取得（FOR UPDATE SKIP LOCKED）
	accounts, err := s.accountRepo.ListDuePolls(ctx)
	if err != nil {
		return err
	}

	if len(accounts) == 0 {
		s.logger.Info("ポーリング対象のアカウントはありません")
		return nil
	}

	s.logger.Info("ポーリングサイクルを開始します",
		slog.Int("account_count", len(accounts)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, account := range accounts {
		// 同一アカウントの多重実行を防ぐ
		if !s.acquire(account.ID) {
			s.logger.Info("アカウントは実行中のためスキップします",
				slog.String("account_id", account.ID),
			)
			continue
		}

		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(a *model.Account) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放
			defer s.release(a.ID)

			if err := s.poller.Poll(ctx, a); err != nil {
				s.logger.Error("アカウントのポーリングに失敗しました",
					slog.String("account_id", a.ID),
					slog.String("network", string(a.Network)),
					slog.String("error", err.Error()),
				)
			}
		}(account)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("ポーリングサイクルが完了しました",
		slog.Int("account_count", len(accounts)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// acquire はアカウントを実行中セットへ登録する。すでに実行中ならfalseを返す。
func (s *Scheduler) acquire(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[accountID]; ok {
		return false
	}
	s.inflight[accountID] = struct{}{}
	return true
}

// release はアカウントを実行中セットから除去する。
func (s *Scheduler) release(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, accountID)
}
