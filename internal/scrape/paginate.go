package scrape

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Walker はページネーションされたコレクションの全リストページを発見する。
// ページ1を起点に幅優先でナビゲーション領域の「次ページ」リンクを辿り、
// 未訪問リンクをキューに積み、フロンティアが尽きたら終了する。
type Walker struct {
	fetcher PageFetcher
	logger  *slog.Logger
}

// NewWalker はWalkerの新しいインスタンスを生成する。
func NewWalker(fetcher PageFetcher, logger *slog.Logger) *Walker {
	return &Walker{
		fetcher: fetcher,
		logger:  logger,
	}
}

// Discover はbaseURLのページネーションを辿り、全ページURLを返す。
// 重複排除はURL文字列の完全一致。取得に失敗したページはフロンティアから
// 静かに落とし、探索は中断しない。最終順序はURLのpageパラメータの数値順
// （BFSの発見順は並行するリンク領域間で連番が保証されないため、
// 発見順や辞書順ではなく数値でソートする）。
func (w *Walker) Discover(ctx context.Context, baseURL string) ([]string, error) {
	first, err := withPage(baseURL, 1)
	if err != nil {
		return nil, err
	}

	visited := make(map[string]bool)
	queue := []string{first}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if visited[current] {
			continue
		}

		body, err := w.fetcher.Fetch(ctx, current)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// ErrUnavailable等: このページを落として探索を続ける
			continue
		}
		visited[current] = true

		for _, link := range paginationLinks(body, current) {
			if !visited[link] {
				queue = append(queue, link)
			}
		}
	}

	pages := make([]string, 0, len(visited))
	for u := range visited {
		pages = append(pages, u)
	}
	sort.Slice(pages, func(i, j int) bool {
		return pageNumber(pages[i]) < pageNumber(pages[j])
	})

	w.logger.Info("ページネーション探索が完了しました",
		slog.String("base_url", baseURL),
		slog.Int("pages", len(pages)),
	)
	return pages, nil
}

// withPage はURLのpageクエリパラメータを指定値に設定する。
func withPage(rawURL string, page int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// pageNumber はURLのpageクエリパラメータを数値として返す。
// パースできない場合は0を返す。
func pageNumber(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil {
		return 0
	}
	return n
}

// paginationLinks はページナビゲーション領域（class "paginate" の要素）内の
// アンカーから、pageパラメータを持つリンクを抽出する。
// 相対リンクはcurrentURLを基準に絶対化する。
func paginationLinks(body []byte, currentURL string) []string {
	base, err := url.Parse(currentURL)
	if err != nil {
		return nil
	}

	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var links []string
	var walk func(n *html.Node, inNav bool)
	walk = func(n *html.Node, inNav bool) {
		if n.Type == html.ElementNode {
			if hasClass(n, "paginate") {
				inNav = true
			}
			if inNav && n.Data == "a" {
				if href, ok := attr(n, "href"); ok {
					if resolved := resolveLink(base, href); resolved != "" && pageNumber(resolved) > 0 {
						links = append(links, resolved)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inNav)
		}
	}
	walk(root, false)
	return links
}

// hasClass は要素がclass属性に指定クラスを含むかを返す。
func hasClass(n *html.Node, class string) bool {
	v, ok := attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

// attr は要素の属性値を返す。
func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// resolveLink はhrefをbaseに対して絶対URLに解決する。
func resolveLink(base *url.URL, href string) string {
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
