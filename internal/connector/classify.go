package connector

import (
	"fmt"
	"time"

	"github.com/hitoshi/favhub/internal/model"
)

// Directive は失敗レスポンスに対する状態変更の指示を表す。
type Directive int

const (
	// DirectiveRetryBackoff はエラー回数を加算しモードを維持したまま再試行する。
	DirectiveRetryBackoff Directive = iota
	// DirectiveRateLimit はrateLimitedモードを重ねる。
	DirectiveRateLimit
	// DirectiveDisable はアカウントを無効化しスケジューリングを停止する。
	DirectiveDisable
	// DirectiveIgnore は一過性の不正ペイロードとして扱い、次サイクルで再試行する。
	DirectiveIgnore
)

// String はログ用の指示名を返す。
func (d Directive) String() string {
	switch d {
	case DirectiveRetryBackoff:
		return "retryBackoff"
	case DirectiveRateLimit:
		return "rateLimit"
	case DirectiveDisable:
		return "disable"
	case DirectiveIgnore:
		return "ignore"
	}
	return "unknown"
}

// CycleError は失敗した収集サイクルの記述。
// 呼び出し元がメトリクスのラベル付けに使えるよう指示とステータスを保持する。
// Quotaは上流が報告した残クォータ。抽出できなかった場合は負値。
type CycleError struct {
	Directive  Directive
	StatusCode int
	Quota      int
	Err        error
}

func (e *CycleError) Error() string { return e.Err.Error() }

func (e *CycleError) Unwrap() error { return e.Err }

// Classify は失敗した、または形式が不正な上流レスポンスを分類する。
// 優先順位: 認可拒否(401/403) > レート制限(429またはクォータ0以下) >
// 通信エラー/5xx > 成功ステータスだが形式不正なボディ。
// 返されるエラーはアカウントと原因を示すログ用の記述であり、プロセスを中断しない。
func Classify(network model.Network, accountID string, statusCode int, quota int, transportErr error, malformed bool) (Directive, error) {
	var directive Directive
	var err error

	switch {
	case statusCode == 401 || statusCode == 403:
		directive = DirectiveDisable
		err = fmt.Errorf("connector %s: アカウント %s の認可が拒否されました (status %d)", network, accountID, statusCode)

	case statusCode == 429 || (quota != quotaUnknown && quota <= 0):
		directive = DirectiveRateLimit
		err = fmt.Errorf("connector %s: アカウント %s がレート制限に達しました (status %d, quota %d)", network, accountID, statusCode, quota)

	case transportErr != nil:
		directive = DirectiveRetryBackoff
		err = fmt.Errorf("connector %s: アカウント %s への通信に失敗しました: %w", network, accountID, transportErr)

	case statusCode >= 500:
		directive = DirectiveRetryBackoff
		err = fmt.Errorf("connector %s: アカウント %s の上流がエラーを返しました (status %d)", network, accountID, statusCode)

	case malformed:
		directive = DirectiveIgnore
		err = fmt.Errorf("connector %s: アカウント %s のレスポンス形式が不正です", network, accountID)

	default:
		directive = DirectiveRetryBackoff
		err = fmt.Errorf("connector %s: アカウント %s のリクエストが失敗しました (status %d)", network, accountID, statusCode)
	}

	return directive, &CycleError{Directive: directive, StatusCode: statusCode, Quota: quota, Err: err}
}

// ApplyFailure は失敗サイクルの状態遷移を適用する。
// 実行時刻の記録とエラー回数の加算は全指示に共通で、
// モード変更と無効化は指示に応じて追加される。
func ApplyFailure(account model.Account, directive Directive, now time.Time) model.Account {
	account = markPolled(account, now)
	account.ErrorCount++

	switch directive {
	case DirectiveRateLimit:
		account = overlayRateLimit(account)
	case DirectiveDisable:
		account.Disabled = true
	}

	return account
}
