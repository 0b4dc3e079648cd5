package scrape

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/toonman/internal/model"
	"github.com/hitoshi/toonman/internal/security"
)

// Extractor はフェッチ済みページから構造化レコードを抽出する。
// フィールド単位の抽出失敗はログに残してそのフィールドを空にし、
// レコード全体は中断しない。自由記述フィールドはサニタイズされる。
type Extractor struct {
	sanitizer security.TextSanitizerService
	logger    *slog.Logger
}

// NewExtractor はExtractorの新しいインスタンスを生成する。
func NewExtractor(sanitizer security.TextSanitizerService, logger *slog.Logger) *Extractor {
	return &Extractor{
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// CategoryLinks はエントリポイントページからカテゴリ一覧のリンクを抽出する。
func (e *Extractor) CategoryLinks(body []byte, pageURL string) ([]string, error) {
	doc, err := parseDoc(body)
	if err != nil {
		return nil, err
	}
	return e.collectLinks(doc, "ul.snb._genre li a", pageURL), nil
}

// EntryLinks はカテゴリページからエントリ候補のリンクを抽出する。
func (e *Extractor) EntryLinks(body []byte, pageURL string) ([]string, error) {
	doc, err := parseDoc(body)
	if err != nil {
		return nil, err
	}
	return e.collectLinks(doc, "ul.card_lst li a", pageURL), nil
}

// EntryDetails はエントリページからメタデータを抽出する。
// エピソードリストは別途ページネーション経由で取得するため含まない。
// 見つからないフィールドは空のまま残し、ログに記録する。
func (e *Extractor) EntryDetails(body []byte, pageURL string) (*model.Webtoon, error) {
	doc, err := parseDoc(body)
	if err != nil {
		return nil, err
	}

	w := &model.Webtoon{URL: pageURL}

	w.Title = e.textField(doc, "h1.subj", "title", pageURL)
	w.CoverImage = e.attrField(doc, "span.thmb img", "src", "cover_image", pageURL)
	w.Genre = e.textField(doc, "h2.genre", "genre", pageURL)
	w.Views = e.textField(doc, "ul.grade_area li span.ico_view + em", "views", pageURL)
	w.Subscribers = e.textField(doc, "ul.grade_area li span.ico_subscribe + em", "subscribers", pageURL)
	w.Rating = e.textField(doc, "ul.grade_area li span.ico_grade5 + em", "rating", pageURL)
	w.Summary = e.sanitizedField(doc, "p.summary", "summary", pageURL)
	w.DayInfo = e.textField(doc, "p.day_info", "day_info", pageURL)

	// 作家情報（名前と紹介文のペア）
	doc.Find("div.ly_creator_in").Each(func(_ int, sec *goquery.Selection) {
		desc, _ := sec.Find("p.desc").First().Html()
		author := model.Author{
			Name:        strings.TrimSpace(sec.Find("h3.title").First().Text()),
			Description: e.sanitizer.Sanitize(desc),
		}
		if author.Name != "" || author.Description != "" {
			w.Authors = append(w.Authors, author)
		}
	})

	// QRコードは相対パスのことがあるためページURL基準で絶対化する
	if qr := e.attrField(doc, "div.detail_install_app img.img_qrcode", "src", "qr_code", pageURL); qr != "" {
		w.QRCode = absoluteURL(pageURL, qr)
	}

	return w, nil
}

// nonDigits はいいね数の桁区切り等を除去するためのパターン。
var nonDigits = regexp.MustCompile(`[^\d]`)

// Episodes はエピソードリストページからエピソードを抽出する。
func (e *Extractor) Episodes(body []byte, pageURL string) ([]model.Episode, error) {
	doc, err := parseDoc(body)
	if err != nil {
		return nil, err
	}

	var episodes []model.Episode
	doc.Find("ul#_listUl li._episodeItem").Each(func(_ int, item *goquery.Selection) {
		ep := model.Episode{
			EpisodeTitle: strings.TrimSpace(item.Find("span.subj span").First().Text()),
			Date:         strings.TrimSpace(item.Find("span.date").First().Text()),
		}

		// "1,234" のような表記から数値だけを取り出す
		likeText := nonDigits.ReplaceAllString(item.Find("span.like_area").First().Text(), "")
		if n, err := strconv.Atoi(likeText); err == nil {
			ep.LikeCount = n
		}

		if href, ok := item.Find("a").First().Attr("href"); ok {
			ep.URL = absoluteURL(pageURL, href)
		}
		if ep.URL == "" {
			e.logger.Warn("エピソードのURLを抽出できませんでした",
				slog.String("page_url", pageURL),
				slog.String("episode_title", ep.EpisodeTitle),
			)
		}

		episodes = append(episodes, ep)
	})

	return episodes, nil
}

// collectLinks はセレクタに一致するアンカーのhrefを絶対URLで収集する。
func (e *Extractor) collectLinks(doc *goquery.Document, selector, pageURL string) []string {
	var links []string
	doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			if resolved := absoluteURL(pageURL, href); resolved != "" {
				links = append(links, resolved)
			}
		}
	})
	if len(links) == 0 {
		e.logger.Warn("リンクを抽出できませんでした",
			slog.String("selector", selector),
			slog.String("page_url", pageURL),
		)
	}
	return links
}

// textField はセレクタに一致する最初の要素のテキストを返す。
// 見つからない場合は空文字を返し、ログに記録する。
func (e *Extractor) textField(doc *goquery.Document, selector, field, pageURL string) string {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		e.logger.Warn("フィールドを抽出できませんでした",
			slog.String("field", field),
			slog.String("page_url", pageURL),
		)
		return ""
	}
	return strings.TrimSpace(sel.Text())
}

// sanitizedField はセレクタに一致する最初の要素の内容をサニタイズして返す。
// テキスト化より先にサニタイズすることで、script要素の中身のような
// 表示されないテキストが結果に混入しない。
func (e *Extractor) sanitizedField(doc *goquery.Document, selector, field, pageURL string) string {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		e.logger.Warn("フィールドを抽出できませんでした",
			slog.String("field", field),
			slog.String("page_url", pageURL),
		)
		return ""
	}
	raw, err := sel.Html()
	if err != nil {
		e.logger.Warn("フィールドを抽出できませんでした",
			slog.String("field", field),
			slog.String("page_url", pageURL),
		)
		return ""
	}
	return e.sanitizer.Sanitize(raw)
}

// attrField はセレクタに一致する最初の要素の属性値を返す。
func (e *Extractor) attrField(doc *goquery.Document, selector, attr, field, pageURL string) string {
	v, ok := doc.Find(selector).First().Attr(attr)
	if !ok {
		e.logger.Warn("フィールドを抽出できませんでした",
			slog.String("field", field),
			slog.String("page_url", pageURL),
		)
		return ""
	}
	return strings.TrimSpace(v)
}

// parseDoc はHTMLボディをgoqueryドキュメントに変換する。
func parseDoc(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTMLのパースに失敗しました: %w", err)
	}
	return doc, nil
}

// absoluteURL はhrefをpageURL基準で絶対化する。
func absoluteURL(pageURL, href string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
