package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/hitoshi/favhub/internal/model"
)

const twitterAPI = "https://api.twitter.com/1.1"

// twitterPageSize は1リクエストあたりの取得件数。
// ページ番号ではなくsince_id/max_idによるIDカーソルで走査する。
const twitterPageSize = 200

// TwitterConnector はTwitterのお気に入りツイートを収集するコネクタ。
// リクエストはOAuth1（コンシューマキー/シークレット + トークン/シークレット）で署名する。
// クォータはx-rate-limit-remainingレスポンスヘッダーから抽出する。
type TwitterConnector struct {
	httpClient     *http.Client
	logger         *slog.Logger
	consumerKey    string
	consumerSecret string
	baseURL        string // テスト用にエンドポイントを差し替え可能
}

// NewTwitterConnector はTwitterConnectorを生成する。
func NewTwitterConnector(httpClient *http.Client, logger *slog.Logger, consumerKey, consumerSecret string) *TwitterConnector {
	return &TwitterConnector{
		httpClient:     httpClient,
		logger:         logger,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		baseURL:        twitterAPI,
	}
}

// Network はネットワーク識別子を返す。
func (c *TwitterConnector) Network() model.Network {
	return model.NetworkTwitter
}

// tweet はお気に入りツイート1件のレスポンス。
type tweet struct {
	IDStr     string `json:"id_str"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	User      struct {
		ScreenName           string `json:"screen_name"`
		ProfileImageURLHTTPS string `json:"profile_image_url_https"`
	} `json:"user"`
}

// Run は1回の収集サイクルを実行する。
func (c *TwitterConnector) Run(ctx context.Context, account model.Account, profile model.UserProfile) (model.Account, []model.Favorite, error) {
	if account.Credentials.AccessToken == "" {
		return account, nil, fmt.Errorf("accessToken が未設定です (account: %s)", account.ID)
	}
	if account.Credentials.AccessTokenSecret == "" {
		return account, nil, fmt.Errorf("accessTokenSecret が未設定です (account: %s)", account.ID)
	}

	work := prepare(account)
	now := time.Now()

	c.logger.Info("リクエストを準備します",
		slog.String("account_id", work.ID),
		slog.String("mode", string(work.Mode)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURI(work), nil)
	if err != nil {
		return account, nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.signedClient(ctx, work.Credentials).Do(req)
	if err != nil {
		directive, cerr := Classify(c.Network(), work.ID, 0, quotaUnknown, err, false)
		return ApplyFailure(work, directive, now), nil, cerr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		directive, cerr := Classify(c.Network(), work.ID, 0, quotaUnknown, err, false)
		return ApplyFailure(work, directive, now), nil, cerr
	}

	quota := headerQuota(resp.Header, "x-rate-limit-remaining")

	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		directive, cerr := Classify(c.Network(), work.ID, resp.StatusCode, quota, nil, false)
		return ApplyFailure(work, directive, now), nil, cerr
	}

	var tweets []tweet
	if err := json.Unmarshal(body, &tweets); err != nil {
		directive, cerr := Classify(c.Network(), work.ID, resp.StatusCode, quota, nil, true)
		return ApplyFailure(work, directive, now), nil, cerr
	}

	favorites := make([]model.Favorite, 0, len(tweets))
	for _, tw := range tweets {
		favorites = append(favorites, model.Favorite{
			ItemID:      tw.IDStr,
			Network:     model.NetworkTwitter,
			AccountID:   account.ID,
			UserID:      account.UserID,
			CreatedAt:   parseTwitterTime(tw.CreatedAt, now),
			Description: sanitizeDescription(tw.Text),
			AuthorName:  tw.User.ScreenName,
			AvatarURL:   tw.User.ProfileImageURLHTTPS,
			SourceURL:   fmt.Sprintf("https://twitter.com/%s/status/%s", tw.User.ScreenName, tw.IDStr),
			Profile:     profile,
			FetchedAt:   now,
		})
	}

	c.logger.Info("お気に入りを取得しました",
		slog.String("account_id", work.ID),
		slog.Int("count", len(favorites)),
		slog.Int("quota_remaining", quota),
	)

	work = markPolled(work, now)
	work.ErrorCount = 0
	work = c.advance(work, favorites)
	work = applyQuota(work, quota)

	return work, favorites, nil
}

// advance はIDカーソル型の成功遷移を適用する。
// initialモード中は末尾アイテムのIDから次ページのmax_id境界を導出し、
// 空ページでバックフィル完了としてnormalモードへ切り替える。
// ウォーターマーク(since_id)は常に最初に見た最新アイテムのIDを保持する。
func (c *TwitterConnector) advance(account model.Account, favorites []model.Favorite) model.Account {
	switch account.Mode {
	case model.ModeInitial:
		if len(favorites) > 0 {
			if account.Cursor.SinceID == "" {
				account.Cursor.SinceID = favorites[0].ItemID
			}
			// max_idは境界を含むため、重複取得を避けるべく1減らす
			account.Cursor.MaxID = decrementStringID(favorites[len(favorites)-1].ItemID)
		} else {
			account.Mode = model.ModeNormal
			account.Cursor.MaxID = ""
		}
	case model.ModeNormal:
		if len(favorites) > 0 {
			account.Cursor.SinceID = favorites[0].ItemID
		}
	}
	return account
}

// requestURI はモードとカーソルに応じたリクエストURIを構築する。
func (c *TwitterConnector) requestURI(account model.Account) string {
	base := fmt.Sprintf("%s/favorites/list.json?count=%d&include_entities=false", c.baseURL, twitterPageSize)

	if account.Cursor.MaxID != "" {
		return fmt.Sprintf("%s&max_id=%s", base, account.Cursor.MaxID)
	}
	if account.Mode == model.ModeNormal && account.Cursor.SinceID != "" {
		return fmt.Sprintf("%s&since_id=%s", base, account.Cursor.SinceID)
	}
	return base
}

// signedClient はOAuth1署名を行うHTTPクライアントを返す。
// 注入されたベースクライアントをoauth1のトランスポートでラップする。
func (c *TwitterConnector) signedClient(ctx context.Context, creds model.Credentials) *http.Client {
	config := oauth1.NewConfig(c.consumerKey, c.consumerSecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
	ctx = context.WithValue(ctx, oauth1.HTTPClient, c.httpClient)
	return config.Client(ctx, token)
}

// parseTwitterTime はTwitterのcreated_at形式（RubyDate）をパースする。
// パースできない場合は取得時刻へフォールバックする。
func parseTwitterTime(s string, fallback time.Time) time.Time {
	t, err := time.Parse(time.RubyDate, s)
	if err != nil {
		return fallback
	}
	return t
}

// compile-time interface check
var _ Connector = (*TwitterConnector)(nil)
