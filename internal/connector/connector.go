// Package connector は各ネットワークからお気に入りを取得するコネクタを提供する。
// コネクタは収集状態を値として受け取り、更新後の状態と正規化済みお気に入りを返す。
// 永続化は行わない。状態の書き込みはスケジューラの責務である。
package connector

import (
	"context"
	"fmt"

	"github.com/hitoshi/favhub/internal/model"
)

// userAgent は全コネクタ共通のUser-Agentヘッダー値。
const userAgent = "favhub/collector"

// quotaLowWater は残クォータの低水位閾値。
// 成功レスポンスの残クォータがこの値以下の場合、rateLimitedモードへ遷移する。
const quotaLowWater = 1

// quotaUnknown はレスポンスからクォータを抽出できなかったことを示す番兵値。
const quotaUnknown = -1

// Connector は1つのネットワークのお気に入り取得処理を表す。
type Connector interface {
	// Network は対応するネットワーク識別子を返す。
	Network() model.Network

	// Run は1回の収集サイクルを実行する。
	// 必須資格情報が欠落している場合は状態を変更せずに即座にエラーを返す。
	// それ以外の失敗はFailure Classifierの指示に従った状態遷移として返され、
	// エラーは呼び出し元のログ用であってプロセスを中断しない。
	Run(ctx context.Context, account model.Account, profile model.UserProfile) (model.Account, []model.Favorite, error)
}

// Factory はネットワーク識別子からコネクタ実装を解決する。
type Factory struct {
	connectors map[model.Network]Connector
}

// NewFactory は渡されたコネクタ群を登録したFactoryを生成する。
func NewFactory(connectors ...Connector) *Factory {
	m := make(map[model.Network]Connector, len(connectors))
	for _, c := range connectors {
		m[c.Network()] = c
	}
	return &Factory{connectors: m}
}

// ForNetwork は指定ネットワークのコネクタを返す。
// 未登録のネットワークの場合はエラーを返す。
func (f *Factory) ForNetwork(network model.Network) (Connector, error) {
	c, ok := f.connectors[network]
	if !ok {
		return nil, fmt.Errorf("未対応のネットワークです: %s", network)
	}
	return c, nil
}
