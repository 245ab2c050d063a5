package model

import "time"

// Favorite は各ネットワークから取得したお気に入りを正規化した共通レコード。
// 追記専用であり、作成後に変更されることはない。
// 同一性は(AccountID, Network, ItemID)で判定され、重複追記は永続化層で抑止される。
type Favorite struct {
	ItemID      string
	Network     Network
	AccountID   string
	UserID      string
	CreatedAt   time.Time // 上流サービスでの作成日時
	Description string    // サニタイズ済みプレーンテキスト
	AuthorName  string
	AvatarURL   string // httpsスキームに正規化済み
	SourceURL   string
	Profile     UserProfile // 取り込み時点のユーザープロフィールの非正規化コピー
	FetchedAt   time.Time
}
