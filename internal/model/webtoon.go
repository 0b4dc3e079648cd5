// Package model はドメインモデルを定義する。
package model

// 日付フォーマット。last_updateは文字列として保存し、
// ドキュメントストアの前方一致クエリとスナップショットの
// latest-wins比較（辞書順＝時系列順になるレイアウト）に使用する。
const (
	// DateLayout はカタログエントリのlast_updateフォーマット（日単位）。
	DateLayout = "2006-01-02"
	// DateTimeLayout はコメントスレッドのlast_updateフォーマット（秒単位）。
	// コメント収集は1日に複数回走るため、日単位より細かい粒度が必要。
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Webtoon はカタログエントリを表す。キーはURL。
// ドキュメントストアが唯一の所有者であり、更新はCoordinatorの
// バッチUPSERT経由でのみ行われる。
type Webtoon struct {
	URL         string    `bson:"url" json:"url"`
	Title       string    `bson:"title" json:"title"`
	CoverImage  string    `bson:"cover_image" json:"cover_image"`
	Genre       string    `bson:"genre" json:"genre"`
	Authors     []Author  `bson:"authors" json:"authors"`
	Views       string    `bson:"views" json:"views"`
	Subscribers string    `bson:"subscribers" json:"subscribers"`
	Rating      string    `bson:"rating" json:"rating"`
	Summary     string    `bson:"summary" json:"summary"`
	QRCode      string    `bson:"qr_code" json:"qr_code"`
	DayInfo     string    `bson:"day_info" json:"day_info"`
	Episodes    []Episode `bson:"episodes" json:"episodes"`
	LastUpdate  string    `bson:"last_update" json:"last_update"`
}

// Author は作家情報を表す。
type Author struct {
	Name        string `bson:"name" json:"name"`
	Description string `bson:"description" json:"description"`
}

// Episode はWebtoonの1エピソードを表す。
// 抽出後はイミュータブルで、親の再フェッチ時にリスト全体が置き換えられる
// （部分マージはしない）。
type Episode struct {
	EpisodeTitle string `bson:"episode_title" json:"episode_title"`
	Date         string `bson:"date" json:"date"`
	LikeCount    int    `bson:"like_count" json:"like_count"`
	URL          string `bson:"url" json:"url"`
}
