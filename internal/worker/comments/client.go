// Package comments は当日更新されたエピソードのコメント収集を提供する。
// コメント領域はスクリプト描画のため、リモートブラウザ経由で取得する。
package comments

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/hitoshi/toonman/internal/model"
)

// ClientConfig はブラウザクライアントの動作パラメータ。
type ClientConfig struct {
	// CDPURL はリモートブラウザのDevTools WebSocket URL。
	CDPURL string
	// CommentLimit は1エピソードあたりの最大コメント数（デフォルト: 5）。
	CommentLimit int
	// ReplyLimit は1コメントあたりの最大返信数（デフォルト: 5）。
	ReplyLimit int
	// WaitTimeout はコメント領域の描画待ちの上限（デフォルト: 10秒）。
	WaitTimeout time.Duration
	// SessionRetries はブラウザセッション確立の最大試行回数（デフォルト: 3）。
	SessionRetries int
	// SessionRetryDelay はセッション確立の試行間隔（デフォルト: 5秒）。
	SessionRetryDelay time.Duration
}

// Client はリモートブラウザでエピソードページを描画しコメントを抽出する。
// セッション確立に失敗し続けた場合は空の結果を返す（ソフト失敗）。
type Client struct {
	logger *slog.Logger
	config ClientConfig
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(logger *slog.Logger, config ClientConfig) *Client {
	if config.CommentLimit <= 0 {
		config.CommentLimit = 5
	}
	if config.ReplyLimit <= 0 {
		config.ReplyLimit = 5
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = 10 * time.Second
	}
	if config.SessionRetries <= 0 {
		config.SessionRetries = 3
	}
	if config.SessionRetryDelay <= 0 {
		config.SessionRetryDelay = 5 * time.Second
	}
	return &Client{
		logger: logger,
		config: config,
	}
}

// dismissConsentJS は同意バナーを閉じる。バナーはshadow DOM内に
// 描画されるためセレクタでは届かず、shadowRootを直接辿る。
const dismissConsentJS = `(() => {
	const host = document.querySelector('div[id^="sp_message_container"], #cmp-container');
	if (!host || !host.shadowRoot) { return false; }
	const btn = host.shadowRoot.querySelector('button.accept-all, button[title="OK"], button[aria-label="OK"]');
	if (!btn) { return false; }
	btn.click();
	return true;
})()`

// extractCommentsJS はコメントリストを構造化して返す。
// 引数はコメント数上限と返信数上限。
const extractCommentsJS = `((commentLimit, replyLimit) => {
	const text = (root, sel) => {
		const el = root.querySelector(sel);
		return el ? el.textContent.trim() : "";
	};
	const items = document.querySelectorAll("ul.u_cbox_list > li.u_cbox_comment");
	const comments = [];
	for (const item of items) {
		if (comments.length >= commentLimit) { break; }
		const replies = [];
		for (const reply of item.querySelectorAll("ul.u_cbox_reply_list li.u_cbox_comment")) {
			if (replies.length >= replyLimit) { break; }
			replies.push({
				username: text(reply, "span.u_cbox_nick"),
				date: text(reply, "span.u_cbox_date"),
				content: text(reply, "span.u_cbox_contents"),
			});
		}
		comments.push({
			username: text(item, "span.u_cbox_nick"),
			date: text(item, "span.u_cbox_date"),
			content: text(item, "span.u_cbox_contents"),
			likes: text(item, "em.u_cbox_cnt_recomm"),
			dislikes: text(item, "em.u_cbox_cnt_unrecomm"),
			replies: replies,
		});
	}
	return comments;
})(%d, %d)`

// rawComment はページ内JSが返すコメントの中間表現。
type rawComment struct {
	Username string     `json:"username"`
	Date     string     `json:"date"`
	Content  string     `json:"content"`
	Likes    string     `json:"likes"`
	Dislikes string     `json:"dislikes"`
	Replies  []rawReply `json:"replies"`
}

type rawReply struct {
	Username string `json:"username"`
	Date     string `json:"date"`
	Content  string `json:"content"`
}

// Harvest はエピソードページのコメントを抽出する。
// セッション確立がリトライ上限まで失敗した場合は空スライスを返し、
// エラーにはしない（このエピソードは空コメントとして記録される）。
func (c *Client) Harvest(ctx context.Context, episodeURL string) ([]model.Comment, error) {
	for attempt := 1; attempt <= c.config.SessionRetries; attempt++ {
		comments, err := c.harvestOnce(ctx, episodeURL)
		if err == nil {
			return comments, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.logger.Warn("ブラウザセッションの確立に失敗しました",
			slog.String("episode_url", episodeURL),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", c.config.SessionRetries),
			slog.String("error", err.Error()),
		)
		if attempt < c.config.SessionRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.SessionRetryDelay):
			}
		}
	}

	c.logger.Error("リトライ上限に達したため空のコメント結果を返します",
		slog.String("episode_url", episodeURL),
	)
	return []model.Comment{}, nil
}

func (c *Client) harvestOnce(ctx context.Context, episodeURL string) ([]model.Comment, error) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, c.config.CDPURL)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	// セッションは必ず解放する
	defer cancelTask()

	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(episodeURL),
	); err != nil {
		return nil, err
	}

	// 同意バナーは出ないこともある。失敗しても抽出は続行する。
	var dismissed bool
	if err := chromedp.Run(taskCtx,
		chromedp.Evaluate(dismissConsentJS, &dismissed),
	); err != nil {
		c.logger.Warn("同意バナーの処理に失敗しました",
			slog.String("episode_url", episodeURL),
			slog.String("error", err.Error()),
		)
	}

	// コメント領域の描画を待つ。タイムアウトは空コメント扱い。
	waitCtx, cancelWait := context.WithTimeout(taskCtx, c.config.WaitTimeout)
	defer cancelWait()
	if err := chromedp.Run(waitCtx,
		chromedp.WaitVisible("ul.u_cbox_list", chromedp.ByQuery),
	); err != nil {
		if waitCtx.Err() == context.DeadlineExceeded {
			c.logger.Info("コメント領域が描画されませんでした",
				slog.String("episode_url", episodeURL),
			)
			return []model.Comment{}, nil
		}
		return nil, err
	}

	var raw []rawComment
	extract := formatExtractJS(c.config.CommentLimit, c.config.ReplyLimit)
	if err := chromedp.Run(taskCtx,
		chromedp.Evaluate(extract, &raw),
	); err != nil {
		return nil, err
	}

	return convertComments(raw), nil
}

// countDigits は表示用カウント文字列から数字だけを取り出す。
var countDigits = regexp.MustCompile(`[^\d]`)

// parseCount は"1,234"のような表示用カウントを数値に変換する。
// 数字が含まれない場合は0を返す。
func parseCount(s string) int {
	n, err := strconv.Atoi(countDigits.ReplaceAllString(s, ""))
	if err != nil {
		return 0
	}
	return n
}

// formatExtractJS は抽出スクリプトに上限値を埋め込む。
func formatExtractJS(commentLimit, replyLimit int) string {
	return fmt.Sprintf(extractCommentsJS, commentLimit, replyLimit)
}

// convertComments は中間表現をモデルに変換する。
func convertComments(raw []rawComment) []model.Comment {
	comments := make([]model.Comment, 0, len(raw))
	for _, rc := range raw {
		comment := model.Comment{
			Username: rc.Username,
			Date:     rc.Date,
			Content:  rc.Content,
			Likes:    parseCount(rc.Likes),
			Dislikes: parseCount(rc.Dislikes),
		}
		for _, rr := range rc.Replies {
			comment.Replies = append(comment.Replies, model.Reply{
				Username: rr.Username,
				Date:     rr.Date,
				Content:  rr.Content,
			})
		}
		comments = append(comments, comment)
	}
	return comments
}
