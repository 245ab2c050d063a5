package connector

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// descriptionPolicy はお気に入りの説明文からHTMLタグを全て除去するポリシー。
// ツイート本文や質問タイトルにはマークアップが混入し得るため、
// 保存前にプレーンテキストへ落とす。ポリシーは読み取り専用でスレッドセーフ。
var descriptionPolicy = bluemonday.StrictPolicy()

// sanitizeDescription は説明文をプレーンテキストにサニタイズする。
func sanitizeDescription(s string) string {
	return descriptionPolicy.Sanitize(s)
}

// secureAvatarURL はアバターURLをhttpsスキームへ正規化する。
func secureAvatarURL(u string) string {
	if strings.HasPrefix(strings.ToLower(u), "http://") {
		return "https://" + u[len("http://"):]
	}
	return u
}
