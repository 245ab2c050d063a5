package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/favhub/internal/model"
)

// PostgresFavoriteRepo はPostgreSQLを使用したお気に入りリポジトリ。
type PostgresFavoriteRepo struct {
	db *sql.DB
}

// NewPostgresFavoriteRepo はPostgresFavoriteRepoを生成する。
func NewPostgresFavoriteRepo(db *sql.DB) *PostgresFavoriteRepo {
	return &PostgresFavoriteRepo{db: db}
}

// Append はお気に入りを追記する。
// ON CONFLICT DO NOTHINGにより(account_id, network, item_id)の重複は黙ってスキップされ、
// クラッシュ後の再実行やウォーターマーク境界での重複取得が安全になる。
func (r *PostgresFavoriteRepo) Append(ctx context.Context, favorites []model.Favorite) (int, error) {
	if len(favorites) == 0 {
		return 0, nil
	}

	inserted := 0
	for _, fav := range favorites {
		res, err := r.db.ExecContext(ctx,
			`INSERT INTO favorites (item_id, network, account_id, user_id, created_at,
			                        description, author_name, avatar_url, source_url,
			                        profile_name, profile_email, profile_avatar_url, fetched_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 ON CONFLICT (account_id, network, item_id) DO NOTHING`,
			fav.ItemID, fav.Network, fav.AccountID, fav.UserID, fav.CreatedAt,
			nullString(fav.Description), nullString(fav.AuthorName),
			nullString(fav.AvatarURL), nullString(fav.SourceURL),
			nullString(fav.Profile.Name), nullString(fav.Profile.Email), nullString(fav.Profile.AvatarURL),
			fav.FetchedAt,
		)
		if err != nil {
			return inserted, fmt.Errorf("お気に入りの追記に失敗しました: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("お気に入りの追記結果の取得に失敗しました: %w", err)
		}
		inserted += int(affected)
	}

	return inserted, nil
}

// CountByAccount は指定アカウントのお気に入り件数を返す。
func (r *PostgresFavoriteRepo) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM favorites WHERE account_id = $1`, accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("お気に入り件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ FavoriteRepository = (*PostgresFavoriteRepo)(nil)
