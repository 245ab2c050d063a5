// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/favhub/internal/model"
)

// AccountRepository はアカウント収集状態の永続化インターフェース。
type AccountRepository interface {
	// Create はアカウントを作成する。
	Create(ctx context.Context, account *model.Account) error

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// ListDuePolls はポーリング対象のアカウントを取得する。
	// next_poll_at <= now() かつ disabled = false のアカウントを
	// initialモード優先・next_poll_at昇順でFOR UPDATE SKIP LOCKEDにより排他的に取得する。
	ListDuePolls(ctx context.Context) ([]*model.Account, error)

	// Save はコネクタ実行後の収集状態を保存する。
	// mode、prev_mode、カーソル、error_count、last_polled_at、disabled、next_poll_atを更新する。
	Save(ctx context.Context, account *model.Account) error

	// Disable はアカウントを論理削除する。以後スケジューリング対象から外れる。
	Disable(ctx context.Context, id string) error
}

// FavoriteRepository は正規化済みお気に入りの永続化インターフェース。
type FavoriteRepository interface {
	// Append はお気に入りを追記する。
	// (account_id, network, item_id)が既存の場合は黙ってスキップする（冪等）。
	// 戻り値は実際に挿入された件数。
	Append(ctx context.Context, favorites []model.Favorite) (int, error)

	// CountByAccount は指定アカウントのお気に入り件数を返す。
	CountByAccount(ctx context.Context, accountID string) (int, error)
}
