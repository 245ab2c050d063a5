package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/favhub/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

const accountColumns = `id, user_id, network, access_token, access_token_secret, username,
       mode, prev_mode, page, since_id, max_id, error_count, last_polled_at,
       disabled, next_poll_at, profile_name, profile_email, profile_avatar_url,
       created_at, updated_at`

// Create はアカウントを作成する。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, network, access_token, access_token_secret, username,
		                       mode, prev_mode, page, since_id, max_id, error_count, last_polled_at,
		                       disabled, next_poll_at, profile_name, profile_email, profile_avatar_url,
		                       created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		account.ID, account.UserID, account.Network,
		nullString(account.Credentials.AccessToken),
		nullString(account.Credentials.AccessTokenSecret),
		nullString(account.Credentials.Username),
		account.Mode, nullString(string(account.PrevMode)),
		nullInt(account.Cursor.Page), nullString(account.Cursor.SinceID), nullString(account.Cursor.MaxID),
		account.ErrorCount, account.LastPolledAt,
		account.Disabled, account.NextPollAt,
		nullString(account.Profile.Name), nullString(account.Profile.Email), nullString(account.Profile.AvatarURL),
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		// 23505: unique_violation（同一ユーザー・ネットワークの重複登録）
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return model.ErrDuplicateAccount
		}
		return fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)

	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	return account, nil
}

// ListDuePolls はポーリング対象のアカウントを取得する。
// initialモードを優先することでバックフィル中のアカウントが先に処理される。
func (r *PostgresAccountRepo) ListDuePolls(ctx context.Context) ([]*model.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts
		 WHERE next_poll_at <= now()
		   AND disabled = FALSE
		 ORDER BY (mode = 'normal') ASC, next_poll_at ASC
		 FOR UPDATE SKIP LOCKED`,
	)
	if err != nil {
		return nil, fmt.Errorf("ポーリング対象アカウントの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ポーリング対象アカウントの読み取りに失敗しました: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ポーリング対象アカウントの走査に失敗しました: %w", err)
	}

	return accounts, nil
}

// Save はコネクタ実行後の収集状態を保存する。
// 資格情報とプロフィールは収集サイクルでは変更されないため更新しない。
func (r *PostgresAccountRepo) Save(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET
		    mode = $2,
		    prev_mode = $3,
		    page = $4,
		    since_id = $5,
		    max_id = $6,
		    error_count = $7,
		    last_polled_at = $8,
		    disabled = $9,
		    next_poll_at = $10,
		    updated_at = now()
		 WHERE id = $1`,
		account.ID,
		account.Mode, nullString(string(account.PrevMode)),
		nullInt(account.Cursor.Page), nullString(account.Cursor.SinceID), nullString(account.Cursor.MaxID),
		account.ErrorCount, account.LastPolledAt,
		account.Disabled, account.NextPollAt,
	)
	if err != nil {
		return fmt.Errorf("収集状態の保存に失敗しました: %w", err)
	}
	return nil
}

// Disable はアカウントを論理削除する。
func (r *PostgresAccountRepo) Disable(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET disabled = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("アカウントの無効化に失敗しました: %w", err)
	}
	return nil
}

// rowScanner はsql.Rowとsql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	account := &model.Account{}
	var accessToken, accessTokenSecret, username sql.NullString
	var prevMode, sinceID, maxID sql.NullString
	var profileName, profileEmail, profileAvatar sql.NullString
	var page sql.NullInt64
	var lastPolledAt sql.NullTime

	if err := row.Scan(
		&account.ID, &account.UserID, &account.Network,
		&accessToken, &accessTokenSecret, &username,
		&account.Mode, &prevMode, &page, &sinceID, &maxID,
		&account.ErrorCount, &lastPolledAt,
		&account.Disabled, &account.NextPollAt,
		&profileName, &profileEmail, &profileAvatar,
		&account.CreatedAt, &account.UpdatedAt,
	); err != nil {
		return nil, err
	}

	account.Credentials = model.Credentials{
		AccessToken:       nullStringValue(accessToken),
		AccessTokenSecret: nullStringValue(accessTokenSecret),
		Username:          nullStringValue(username),
	}
	account.PrevMode = model.Mode(nullStringValue(prevMode))
	account.Cursor = model.Cursor{
		Page:    int(page.Int64),
		SinceID: nullStringValue(sinceID),
		MaxID:   nullStringValue(maxID),
	}
	if lastPolledAt.Valid {
		t := lastPolledAt.Time
		account.LastPolledAt = &t
	}
	account.Profile = model.UserProfile{
		Name:      nullStringValue(profileName),
		Email:     nullStringValue(profileEmail),
		AvatarURL: nullStringValue(profileAvatar),
	}

	return account, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullInt は0をNULLとして扱うsql.NullInt64に変換する。
func nullInt(i int) sql.NullInt64 {
	if i == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(i), Valid: true}
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
