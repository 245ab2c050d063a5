// Package model はドメインモデルを定義する。
package model

import "time"

// Network は収集対象の外部サービスを表す。
type Network string

const (
	// NetworkGithub はGitHubのスター収集を表す。
	NetworkGithub Network = "github"
	// NetworkTwitter はTwitterのお気に入り収集を表す。
	NetworkTwitter Network = "twitter"
	// NetworkStackoverflow はStack Overflowのお気に入り収集を表す。
	NetworkStackoverflow Network = "stackoverflow"
)

// IsValid は既知のネットワークかどうかを返す。
func (n Network) IsValid() bool {
	switch n {
	case NetworkGithub, NetworkTwitter, NetworkStackoverflow:
		return true
	}
	return false
}

// Mode はアカウントの収集モードを表す。
type Mode string

const (
	// ModeInitial は過去分を遡って取得するバックフィルモード。
	ModeInitial Mode = "initial"
	// ModeNormal はウォーターマーク以降の差分のみを取得する定常モード。
	ModeNormal Mode = "normal"
	// ModeRateLimited はレート制限超過後の待機モード。
	// 次回実行時にPrevModeへ復帰する一時的な状態。
	ModeRateLimited Mode = "rateLimited"
)

// Credentials はネットワークごとのアクセス資格情報を保持する。
// 必須フィールドはネットワークにより異なり、コネクタが実行前に検証する。
type Credentials struct {
	AccessToken       string
	AccessTokenSecret string
	Username          string
}

// Cursor はページネーション/ウォーターマークの進行状態を保持する。
// モードとネットワークに応じて使用するフィールドが排他的に決まる。
// initialモードは前進ページカウンタ、normalモードはSinceIDウォーターマーク
// （twitterのバックフィル中のみ一時的にMaxID境界）を使用する。
type Cursor struct {
	Page    int
	SinceID string
	MaxID   string
}

// IsZero はカーソルが未設定かどうかを返す。
func (c Cursor) IsZero() bool {
	return c.Page == 0 && c.SinceID == "" && c.MaxID == ""
}

// Account は(ユーザー, ネットワーク)ごとの収集状態を表す。
// コネクタは値として受け取り新しい値を返す。永続化はスケジューラのみが行う。
type Account struct {
	ID           string
	UserID       string
	Network      Network
	Credentials  Credentials
	Mode         Mode
	PrevMode     Mode // ModeRateLimitedの間のみ設定され、復帰先モードを記録する
	Cursor       Cursor
	ErrorCount   int
	LastPolledAt *time.Time
	Disabled     bool
	NextPollAt   time.Time
	Profile      UserProfile // お気に入りへ非正規化コピーされるユーザープロフィール
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
