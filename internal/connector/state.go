package connector

import (
	"time"

	"github.com/hitoshi/favhub/internal/model"
)

// prepare はリクエスト構築前の状態初期化を行う。
// モード未設定はinitialとして扱い、initialモードのページカーソルは1から始まる。
// rateLimitedモードはPrevModeへ復帰する。スケジューラのディレイにより
// クォータ窓が経過済みであることを楽観的に仮定し、クォータの再確認は行わない。
func prepare(account model.Account) model.Account {
	if account.Mode == "" {
		account.Mode = model.ModeInitial
	}

	if account.Mode == model.ModeRateLimited {
		account.Mode = account.PrevMode
		if account.Mode == "" {
			account.Mode = model.ModeInitial
		}
		account.PrevMode = ""
	}

	if account.Mode == model.ModeInitial && account.Cursor.Page == 0 {
		account.Cursor.Page = 1
	}

	return account
}

// markPolled は実行完了時刻を記録する。成功・失敗を問わず毎サイクル更新される。
func markPolled(account model.Account, now time.Time) model.Account {
	t := now
	account.LastPolledAt = &t
	return account
}

// overlayRateLimit は現在のモードをPrevModeへ退避してrateLimitedモードを重ねる。
// すでにrateLimitedの場合は何もしない（PrevModeを上書きしない）。
func overlayRateLimit(account model.Account) model.Account {
	if account.Mode == model.ModeRateLimited {
		return account
	}
	account.PrevMode = account.Mode
	account.Mode = model.ModeRateLimited
	return account
}

// applyQuota は成功サイクルの残クォータを検査し、低水位以下ならrateLimitedを重ねる。
// クォータを抽出できなかった場合(quotaUnknown)は何もしない。
func applyQuota(account model.Account, quota int) model.Account {
	if quota != quotaUnknown && quota <= quotaLowWater {
		account = overlayRateLimit(account)
	}
	return account
}

// advancePage はページカーソル型ネットワークの成功遷移を適用する。
// initialモードで結果が非空ならページを進め、空ならnormalモードへ切り替えて
// ページカーソルを消去する。normalモードで結果が非空なら先頭アイテムの
// IDをウォーターマークとして記録する。
func advancePage(account model.Account, favorites []model.Favorite) model.Account {
	switch account.Mode {
	case model.ModeInitial:
		if len(favorites) > 0 {
			account.Cursor.Page++
			// 最初のページの先頭が全体の最新アイテムになる
			if account.Cursor.SinceID == "" {
				account.Cursor.SinceID = favorites[0].ItemID
			}
		} else {
			account.Mode = model.ModeNormal
			account.Cursor.Page = 0
		}
	case model.ModeNormal:
		if len(favorites) > 0 {
			account.Cursor.SinceID = favorites[0].ItemID
		}
	}
	return account
}

// decrementStringID は10進数文字列のIDを1減らす。
// 64bit整数に収まらないIDを扱うため文字列のまま桁借りで計算する。
func decrementStringID(id string) string {
	digits := []byte(id)
	for i := len(digits) - 1; i >= 0; i-- {
		if digits[i] > '0' {
			digits[i]--
			break
		}
		digits[i] = '9'
	}
	// 先頭の冗長なゼロを除去する（"100" - 1 = "099" -> "99"）
	if len(digits) > 1 && digits[0] == '0' {
		digits = digits[1:]
	}
	return string(digits)
}
