// Package poll はお気に入り収集のバックグラウンドポーリング処理を提供する。
// スケジューラ、ポーラー、次回実行時刻の計算を含む。
package poll

import (
	"time"

	"github.com/hitoshi/favhub/internal/model"
)

// Delays はモード別ディレイとエラーバックオフの設定。
type Delays struct {
	// モード別の基本ディレイ
	Initial     time.Duration
	Normal      time.Duration
	RateLimited time.Duration

	// エラー回数に応じた指数バックオフ
	ErrorBackoffBase time.Duration
	ErrorBackoffMax  time.Duration
}

// Next はアカウントの実行後状態から次回実行時刻を計算する。
// モード別の基本ディレイとエラーバックオフの大きい方を採用する。
func (d Delays) Next(account model.Account, now time.Time) time.Time {
	delay := d.modeDelay(account.Mode)

	if backoff := d.errorBackoff(account.ErrorCount); backoff > delay {
		delay = backoff
	}

	return now.Add(delay)
}

func (d Delays) modeDelay(mode model.Mode) time.Duration {
	switch mode {
	case model.ModeNormal:
		return d.Normal
	case model.ModeRateLimited:
		return d.RateLimited
	default:
		return d.Initial
	}
}

// errorBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回はベース値、2倍ずつ増加、最大値で頭打ち。
func (d Delays) errorBackoff(errorCount int) time.Duration {
	if errorCount <= 0 {
		return 0
	}

	delay := d.ErrorBackoffBase
	for i := 1; i < errorCount; i++ {
		delay *= 2
		if delay > d.ErrorBackoffMax {
			return d.ErrorBackoffMax
		}
	}
	if delay > d.ErrorBackoffMax {
		return d.ErrorBackoffMax
	}
	return delay
}
