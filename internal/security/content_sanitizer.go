package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はスクレイピングで得た自由記述テキストの
// サニタイズインターフェース。あらすじ・作家紹介・コメント本文など、
// ページ由来のテキストはすべてこれを通してから保存する。
type TextSanitizerService interface {
	Sanitize(input string) string
}

// TextSanitizer はbluemondayのStrictPolicyによるテキストサニタイザー。
// スクレイピング結果にマークアップが混入しても全タグを除去し、
// プレーンテキストだけを保存する。ポリシーはスレッドセーフ。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からすべてのHTMLタグを除去し、前後の空白を取り除く。
func (s *TextSanitizer) Sanitize(input string) string {
	return strings.TrimSpace(s.policy.Sanitize(input))
}
