package model

// CommentThread はエピソードのコメントデータを表す。キーはエピソードURL。
// Webtoonとは独立したライフサイクルを持つ（Webtoon URLではなく
// エピソードURLでキーされる）。
type CommentThread struct {
	EpisodeURL string    `bson:"episode_url" json:"episode_url"`
	Comments   []Comment `bson:"comments" json:"comments"`
	LastUpdate string    `bson:"last_update" json:"last_update"`
}

// Comment は1件のコメントを表す。
type Comment struct {
	Username string  `bson:"username" json:"username"`
	Date     string  `bson:"date" json:"date"`
	Content  string  `bson:"content" json:"content"`
	Likes    int     `bson:"likes" json:"likes"`
	Dislikes int     `bson:"dislikes" json:"dislikes"`
	Replies  []Reply `bson:"replies" json:"replies"`
}

// Reply はコメントへの返信を表す。返信数はreplyLimitで上限される。
type Reply struct {
	Username string `bson:"username" json:"username"`
	Date     string `bson:"date" json:"date"`
	Content  string `bson:"content" json:"content"`
}
