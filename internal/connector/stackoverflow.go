package connector

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/favhub/internal/model"
)

const stackoverflowAPI = "https://api.stackexchange.com/2.1"

const stackoverflowPageSizeInitial = 100

const stackoverflowPageSizeNormal = 50

// StackoverflowConnector はStack Overflowのお気に入り質問を収集するコネクタ。
// レスポンスボディはgzip圧縮されており、展開してからパースする。
// クォータはボディのquota_remainingフィールドから抽出する。
type StackoverflowConnector struct {
	httpClient *http.Client
	logger     *slog.Logger
	clientKey  string // Stack Exchangeアプリケーションキー
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewStackoverflowConnector はStackoverflowConnectorを生成する。
func NewStackoverflowConnector(httpClient *http.Client, logger *slog.Logger, clientKey string) *StackoverflowConnector {
	return &StackoverflowConnector{
		httpClient: httpClient,
		logger:     logger,
		clientKey:  clientKey,
		baseURL:    stackoverflowAPI,
	}
}

// Network はネットワーク識別子を返す。
func (c *StackoverflowConnector) Network() model.Network {
	return model.NetworkStackoverflow
}

// stackoverflowEnvelope はStack Exchange APIの共通レスポンス形式。
// itemsの形式検証を遅延させるためRawMessageで保持する。
type stackoverflowEnvelope struct {
	Items          json.RawMessage `json:"items"`
	QuotaRemaining *int            `json:"quota_remaining"`
}

// stackoverflowQuestion はお気に入り質問1件のレスポンス。
type stackoverflowQuestion struct {
	QuestionID   int64  `json:"question_id"`
	Title        string `json:"title"`
	CreationDate int64  `json:"creation_date"`
	Owner        struct {
		DisplayName  string `json:"display_name"`
		ProfileImage string `json:"profile_image"`
	} `json:"owner"`
}

// Run は1回の収集サイクルを実行する。
func (c *StackoverflowConnector) Run(ctx context.Context, account model.Account, profile model.UserProfile) (model.Account, []model.Favorite, error) {
	if account.Credentials.AccessToken == "" {
		return account, nil, fmt.Errorf("accessToken が未設定です (account: %s)", account.ID)
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
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		directive, cerr := Classify(c.Network(), work.ID, 0, quotaUnknown, err, false)
		return ApplyFailure(work, directive, now), nil, cerr
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp)
	if err != nil {
		directive, cerr := Classify(c.Network(), work.ID, 0, quotaUnknown, err, false)
		return ApplyFailure(work, directive, now), nil, cerr
	}

	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		directive, cerr := Classify(c.Network(), work.ID, resp.StatusCode, quotaUnknown, nil, false)
		return ApplyFailure(work, directive, now), nil, cerr
	}

	var envelope stackoverflowEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		directive, cerr := Classify(c.Network(), work.ID, resp.StatusCode, quotaUnknown, nil, true)
		return ApplyFailure(work, directive, now), nil, cerr
	}

	quota := quotaUnknown
	if envelope.QuotaRemaining != nil {
		quota = *envelope.QuotaRemaining
	}

	var questions []stackoverflowQuestion
	if err := json.Unmarshal(envelope.Items, &questions); err != nil {
		directive, cerr := Classify(c.Network(), work.ID, resp.StatusCode, quota, nil, true)
		return ApplyFailure(work, directive, now), nil, cerr
	}

	favorites := make([]model.Favorite, 0, len(questions))
	for _, q := range questions {
		id := strconv.FormatInt(q.QuestionID, 10)
		favorites = append(favorites, model.Favorite{
			ItemID:      id,
			Network:     model.NetworkStackoverflow,
			AccountID:   account.ID,
			UserID:      account.UserID,
			CreatedAt:   time.Unix(q.CreationDate, 0).UTC(),
			Description: sanitizeDescription(q.Title),
			AuthorName:  q.Owner.DisplayName,
			AvatarURL:   secureAvatarURL(q.Owner.ProfileImage),
			SourceURL:   "https://stackoverflow.com/questions/" + id,
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
	work = advancePage(work, favorites)
	work = applyQuota(work, quota)

	return work, favorites, nil
}

// readBody はレスポンスボディを読み取る。
// Accept-Encodingを明示しているためgzip展開は自前で行う。
// 上流が非圧縮で返すケース（テストサーバー等）も透過的に扱う。
func (c *StackoverflowConnector) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzipストリームの展開に失敗しました: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(reader)
}

// requestURI はモードとカーソルに応じたリクエストURIを構築する。
func (c *StackoverflowConnector) requestURI(account model.Account) string {
	pageSize := stackoverflowPageSizeNormal
	if account.Mode == model.ModeInitial {
		pageSize = stackoverflowPageSizeInitial
	}

	base := fmt.Sprintf("%s/me/favorites?access_token=%s&key=%s&pagesize=%d&sort=activity&order=desc&site=stackoverflow",
		c.baseURL, account.Credentials.AccessToken, c.clientKey, pageSize)

	if account.Mode == model.ModeInitial || account.Cursor.Page > 0 {
		return fmt.Sprintf("%s&page=%d", base, account.Cursor.Page)
	}
	return base
}

// compile-time interface check
var _ Connector = (*StackoverflowConnector)(nil)
