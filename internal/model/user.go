package model

// UserProfile はアカウント所有者の表示用プロフィール。
// 取り込みのたびにお気に入りレコードへ非正規化コピーされる。
type UserProfile struct {
	Name      string
	Email     string
	AvatarURL string
}
