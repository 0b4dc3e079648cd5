package scrape

import (
	"testing"

	"github.com/hitoshi/toonman/internal/security"
)

const entryPage = `<html><body>
<h1 class="subj">Tower of Test</h1>
<span class="thmb"><img src="https://cdn.example.com/cover.jpg"></span>
<h2 class="genre">FANTASY</h2>
<div class="ly_creator_in"><h3 class="title">Author One</h3><p class="desc">writes <b>things</b></p></div>
<ul class="grade_area">
  <li><span class="ico_view"></span><em>1.2M</em></li>
  <li><span class="ico_subscribe"></span><em>340,000</em></li>
  <li><span class="ico_grade5"></span><em>9.81</em></li>
</ul>
<p class="summary">A hero <script>alert(1)</script>climbs.</p>
<p class="day_info">EVERY MONDAY</p>
<div class="detail_install_app"><img class="img_qrcode" src="/qr/123.png"></div>
</body></html>`

func newTestExtractor() *Extractor {
	return NewExtractor(security.NewTextSanitizer(), discardLogger())
}

func TestEntryDetails_FullPage(t *testing.T) {
	e := newTestExtractor()
	w, err := e.EntryDetails([]byte(entryPage), "https://example.com/en/fantasy/tower/list")
	if err != nil {
		t.Fatalf("抽出に成功するべき: %v", err)
	}

	if w.Title != "Tower of Test" {
		t.Errorf("Title = %q", w.Title)
	}
	if w.CoverImage != "https://cdn.example.com/cover.jpg" {
		t.Errorf("CoverImage = %q", w.CoverImage)
	}
	if w.Genre != "FANTASY" {
		t.Errorf("Genre = %q", w.Genre)
	}
	if w.Views != "1.2M" {
		t.Errorf("Views = %q", w.Views)
	}
	if w.Subscribers != "340,000" {
		t.Errorf("Subscribers = %q", w.Subscribers)
	}
	if w.Rating != "9.81" {
		t.Errorf("Rating = %q", w.Rating)
	}
	if w.Summary != "A hero climbs." {
		t.Errorf("サニタイズ後のSummary = %q", w.Summary)
	}
	if w.DayInfo != "EVERY MONDAY" {
		t.Errorf("DayInfo = %q", w.DayInfo)
	}
	if len(w.Authors) != 1 || w.Authors[0].Name != "Author One" {
		t.Fatalf("Authors = %+v", w.Authors)
	}
	if w.Authors[0].Description != "writes things" {
		t.Errorf("作家紹介文はサニタイズされるべき: %q", w.Authors[0].Description)
	}
	if w.QRCode != "https://example.com/qr/123.png" {
		t.Errorf("QRコードは絶対URLであるべき: %q", w.QRCode)
	}
}

func TestEntryDetails_MissingFieldsStayEmpty(t *testing.T) {
	e := newTestExtractor()
	w, err := e.EntryDetails([]byte(`<html><body><h1 class="subj">Only Title</h1></body></html>`),
		"https://example.com/en/x/list")
	if err != nil {
		t.Fatalf("フィールド欠損でもレコードは中断しないべき: %v", err)
	}
	if w.Title != "Only Title" {
		t.Errorf("Title = %q", w.Title)
	}
	if w.Genre != "" || w.CoverImage != "" || w.Summary != "" {
		t.Errorf("欠損フィールドは空のまま残るべき: %+v", w)
	}
	if len(w.Authors) != 0 {
		t.Errorf("Authors = %+v", w.Authors)
	}
}

func TestCategoryLinks(t *testing.T) {
	e := newTestExtractor()
	body := []byte(`<html><body><ul class="snb _genre">
		<li><a href="/en/fantasy">Fantasy</a></li>
		<li><a href="/en/romance">Romance</a></li>
	</ul></body></html>`)

	links, err := e.CategoryLinks(body, "https://example.com/en/genres")
	if err != nil {
		t.Fatalf("抽出に成功するべき: %v", err)
	}
	want := []string{"https://example.com/en/fantasy", "https://example.com/en/romance"}
	if len(links) != len(want) {
		t.Fatalf("リンク数 = %d, want %d", len(links), len(want))
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("links[%d] = %q, want %q", i, links[i], want[i])
		}
	}
}

func TestEntryLinks(t *testing.T) {
	e := newTestExtractor()
	body := []byte(`<html><body><ul class="card_lst">
		<li><a href="https://example.com/en/fantasy/tower/list?title_no=1">Tower</a></li>
		<li><a href="javascript:void(0)">bad</a></li>
	</ul></body></html>`)

	links, err := e.EntryLinks(body, "https://example.com/en/fantasy")
	if err != nil {
		t.Fatalf("抽出に成功するべき: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("http(s)以外のリンクは除外されるべき: %v", links)
	}
	if links[0] != "https://example.com/en/fantasy/tower/list?title_no=1" {
		t.Errorf("links[0] = %q", links[0])
	}
}

func TestEpisodes(t *testing.T) {
	e := newTestExtractor()
	body := []byte(`<html><body><ul id="_listUl">
		<li class="_episodeItem">
			<a href="/en/fantasy/tower/ep-2/viewer?episode_no=2">
				<span class="subj"><span>Episode 2</span></span>
				<span class="date">Jan 15, 2024</span>
				<span class="like_area">like1,234</span>
			</a>
		</li>
		<li class="_episodeItem">
			<a href="/en/fantasy/tower/ep-1/viewer?episode_no=1">
				<span class="subj"><span>Episode 1</span></span>
				<span class="date">Jan 8, 2024</span>
				<span class="like_area">like987</span>
			</a>
		</li>
	</ul></body></html>`)

	eps, err := e.Episodes(body, "https://example.com/en/fantasy/tower/list?page=1")
	if err != nil {
		t.Fatalf("抽出に成功するべき: %v", err)
	}
	if len(eps) != 2 {
		t.Fatalf("エピソード数 = %d, want 2", len(eps))
	}
	if eps[0].EpisodeTitle != "Episode 2" || eps[0].Date != "Jan 15, 2024" {
		t.Errorf("eps[0] = %+v", eps[0])
	}
	if eps[0].LikeCount != 1234 {
		t.Errorf("桁区切りは除去されるべき: %d", eps[0].LikeCount)
	}
	if eps[0].URL != "https://example.com/en/fantasy/tower/ep-2/viewer?episode_no=2" {
		t.Errorf("URLは絶対化されるべき: %q", eps[0].URL)
	}
	if eps[1].LikeCount != 987 {
		t.Errorf("eps[1].LikeCount = %d", eps[1].LikeCount)
	}
}

func TestEpisodes_EmptyList(t *testing.T) {
	e := newTestExtractor()
	eps, err := e.Episodes([]byte(`<html><body></body></html>`), "https://example.com/x")
	if err != nil {
		t.Fatalf("空ページでもエラーにならないべき: %v", err)
	}
	if len(eps) != 0 {
		t.Errorf("エピソードは0件であるべき: %v", eps)
	}
}
