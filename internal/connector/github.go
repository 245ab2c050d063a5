package connector

import (
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

const githubAPI = "https://api.github.com"

// githubPageSizeInitial はバックフィル時のページサイズ。
const githubPageSizeInitial = 100

// githubPageSizeNormal は定常モードのページサイズ。
const githubPageSizeNormal = 50

// GithubConnector はGitHubのスター付きリポジトリを収集するコネクタ。
// クォータはX-RateLimit-Remainingレスポンスヘッダーから抽出する。
type GithubConnector struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewGithubConnector はGithubConnectorを生成する。
func NewGithubConnector(httpClient *http.Client, logger *slog.Logger) *GithubConnector {
	return &GithubConnector{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    githubAPI,
	}
}

// Network はネットワーク識別子を返す。
func (c *GithubConnector) Network() model.Network {
	return model.NetworkGithub
}

// githubStar はGitHub APIのスター付きリポジトリレスポンス。
type githubStar struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	HTMLURL     string    `json:"html_url"`
	CreatedAt   time.Time `json:"created_at"`
	Owner       struct {
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
	} `json:"owner"`
}

// Run は1回の収集サイクルを実行する。
func (c *GithubConnector) Run(ctx context.Context, account model.Account, profile model.UserProfile) (model.Account, []model.Favorite, error) {
	if account.Credentials.AccessToken == "" {
		return account, nil, fmt.Errorf("accessToken が未設定です (account: %s)", account.ID)
	}
	if account.Credentials.Username == "" {
		return account, nil, fmt.Errorf("username が未設定です (account: %s)", account.ID)
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
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
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

	quota := headerQuota(resp.Header, "X-RateLimit-Remaining")

	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		directive, cerr := Classify(c.Network(), work.ID, resp.StatusCode, quota, nil, false)
		return ApplyFailure(work, directive, now), nil, cerr
	}

	var stars []githubStar
	if err := json.Unmarshal(body, &stars); err != nil {
		directive, cerr := Classify(c.Network(), work.ID, resp.StatusCode, quota, nil, true)
		return ApplyFailure(work, directive, now), nil, cerr
	}

	favorites := make([]model.Favorite, 0, len(stars))
	for _, star := range stars {
		favorites = append(favorites, model.Favorite{
			ItemID:      strconv.FormatInt(star.ID, 10),
			Network:     model.NetworkGithub,
			AccountID:   account.ID,
			UserID:      account.UserID,
			CreatedAt:   star.CreatedAt,
			Description: sanitizeDescription(star.Description),
			AuthorName:  star.Owner.Login,
			AvatarURL:   secureAvatarURL(star.Owner.AvatarURL),
			SourceURL:   star.HTMLURL,
			Profile:     profile,
			FetchedAt:   now,
		})
	}

	c.logger.Info("スターを取得しました",
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

// requestURI はモードとカーソルに応じたリクエストURIを構築する。
func (c *GithubConnector) requestURI(account model.Account) string {
	pageSize := githubPageSizeNormal
	if account.Mode == model.ModeInitial {
		pageSize = githubPageSizeInitial
	}

	base := fmt.Sprintf("%s/users/%s/starred?access_token=%s&per_page=%d",
		c.baseURL, account.Credentials.Username, account.Credentials.AccessToken, pageSize)

	if account.Mode == model.ModeInitial || account.Cursor.Page > 0 {
		return fmt.Sprintf("%s&page=%d", base, account.Cursor.Page)
	}
	return base
}

// headerQuota はレスポンスヘッダーから残クォータを抽出する。
// ヘッダーが欠落または数値でない場合はquotaUnknownを返す。
func headerQuota(h http.Header, key string) int {
	v := h.Get(key)
	if v == "" {
		return quotaUnknown
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return quotaUnknown
	}
	return n
}

// compile-time interface check
var _ Connector = (*GithubConnector)(nil)
