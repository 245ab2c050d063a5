package poll

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/favhub/internal/model"
)

// --- モック定義 ---

// mockAccountRepo はAccountRepositoryのテスト用モック。
type mockAccountRepo struct {
	createFunc       func(ctx context.Context, account *model.Account) error
	findByIDFunc     func(ctx context.Context, id string) (*model.Account, error)
	listDuePollsFunc func(ctx context.Context) ([]*model.Account, error)
	saveFunc         func(ctx context.Context, account *model.Account) error
	disableFunc      func(ctx context.Context, id string) error
}

func (m *mockAccountRepo) Create(ctx context.Context, account *model.Account) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, account)
	}
	return nil
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockAccountRepo) ListDuePolls(ctx context.Context) ([]*model.Account, error) {
	if m.listDuePollsFunc != nil {
		return m.listDuePollsFunc(ctx)
	}
	return nil, nil
}

func (m *mockAccountRepo) Save(ctx context.Context, account *model.Account) error {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, account)
	}
	return nil
}

func (m *mockAccountRepo) Disable(ctx context.Context, id string) error {
	if m.disableFunc != nil {
		return m.disableFunc(ctx, id)
	}
	return nil
}

// mockFavoriteRepo はFavoriteRepositoryのテスト用モック。
type mockFavoriteRepo struct {
	appendFunc         func(ctx context.Context, favorites []model.Favorite) (int, error)
	countByAccountFunc func(ctx context.Context, accountID string) (int, error)
}

func (m *mockFavoriteRepo) Append(ctx context.Context, favorites []model.Favorite) (int, error) {
	if m.appendFunc != nil {
		return m.appendFunc(ctx, favorites)
	}
	return len(favorites), nil
}

func (m *mockFavoriteRepo) CountByAccount(ctx context.Context, accountID string) (int, error) {
	if m.countByAccountFunc != nil {
		return m.countByAccountFunc(ctx, accountID)
	}
	return 0, nil
}

// mockPoller はAccountPollerServiceのテスト用モック。
type mockPoller struct {
	pollFunc func(ctx context.Context, account *model.Account) error
}

func (m *mockPoller) Poll(ctx context.Context, account *model.Account) error {
	if m.pollFunc != nil {
		return m.pollFunc(ctx, account)
	}
	return nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func dueAccounts(ids ...string) []*model.Account {
	accounts := make([]*model.Account, 0, len(ids))
	for _, id := range ids {
		accounts = append(accounts, &model.Account{
			ID:      id,
			Network: model.NetworkGithub,
			Mode:    model.ModeNormal,
		})
	}
	return accounts
}

// --- スケジューラのテスト ---

func TestNewScheduler_DefaultConcurrency(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	s := NewScheduler(&mockAccountRepo{}, &mockPoller{}, logger, 0)
	if s.maxConcurrency != 10 {
		t.Errorf("maxConcurrency = %d, want 10", s.maxConcurrency)
	}
}

func TestScheduler_RunOnce_PollsAllDueAccounts(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	repo := &mockAccountRepo{
		listDuePollsFunc: func(ctx context.Context) ([]*model.Account, error) {
			return dueAccounts("a1", "a2", "a3"), nil
		},
	}

	var polled atomic.Int32
	poller := &mockPoller{
		pollFunc: func(ctx context.Context, account *model.Account) error {
			polled.Add(1)
			return nil
		},
	}

	s := NewScheduler(repo, poller, logger, 10)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}

	if got := polled.Load(); got != 3 {
		t.Errorf("ポーリング実行回数 = %d, want 3", got)
	}
}

func TestScheduler_RunOnce_EmptyList(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	repo := &mockAccountRepo{
		listDuePollsFunc: func(ctx context.Context) ([]*model.Account, error) {
			return nil, nil
		},
	}

	s := NewScheduler(repo, &mockPoller{}, logger, 10)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("対象なしでエラーが返された: %v", err)
	}
}

func TestScheduler_RunOnce_ListError(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	repo := &mockAccountRepo{
		listDuePollsFunc: func(ctx context.Context) ([]*model.Account, error) {
			return nil, errors.New("db down")
		},
	}

	s := NewScheduler(repo, &mockPoller{}, logger, 10)
	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("取得失敗時はエラーが返されるべき")
	}
}

func TestScheduler_RunOnce_PollErrorDoesNotAbortCycle(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	repo := &mockAccountRepo{
		listDuePollsFunc: func(ctx context.Context) ([]*model.Account, error) {
			return dueAccounts("a1", "a2"), nil
		},
	}

	var polled atomic.Int32
	poller := &mockPoller{
		pollFunc: func(ctx context.Context, account *model.Account) error {
			polled.Add(1)
			if account.ID == "a1" {
				return errors.New("upstream down")
			}
			return nil
		},
	}

	s := NewScheduler(repo, poller, logger, 10)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}

	if got := polled.Load(); got != 2 {
		t.Errorf("ポーリング実行回数 = %d, want 2", got)
	}
}

func TestScheduler_RunOnce_ConcurrencyLimit(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	repo := &mockAccountRepo{
		listDuePollsFunc: func(ctx context.Context) ([]*model.Account, error) {
			return dueAccounts("a1", "a2", "a3", "a4", "a5", "a6"), nil
		},
	}

	var mu sync.Mutex
	var current, peak int
	poller := &mockPoller{
		pollFunc: func(ctx context.Context, account *model.Account) error {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
			return nil
		},
	}

	s := NewScheduler(repo, poller, logger, 2)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}

	if peak > 2 {
		t.Errorf("最大並列数 = %d, want <= 2", peak)
	}
}

func TestScheduler_SingleFlightPerAccount(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	repo := &mockAccountRepo{
		listDuePollsFunc: func(ctx context.Context) ([]*model.Account, error) {
			return dueAccounts("a1"), nil
		},
	}

	started := make(chan struct{})
	blocked := make(chan struct{})
	var polled atomic.Int32
	poller := &mockPoller{
		pollFunc: func(ctx context.Context, account *model.Account) error {
			polled.Add(1)
			close(started)
			<-blocked
			return nil
		},
	}

	s := NewScheduler(repo, poller, logger, 10)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.RunOnce(context.Background())
	}()

	// 1回目のポーリングが実行中の状態で2回目のサイクルを重ねる
	<-started
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}

	close(blocked)
	wg.Wait()

	// 同一アカウントは多重実行されない
	if got := polled.Load(); got != 1 {
		t.Errorf("ポーリング実行回数 = %d, want 1", got)
	}
}
