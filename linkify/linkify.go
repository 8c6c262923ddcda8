// Package linkify renders post text as HTML.
package linkify

import (
	"regexp"
	"strings"
)

var (
	escaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#39;",
	)

	urlRe     = regexp.MustCompile(`(https?://[^` + space + `]+)`)
	hashtagRe = regexp.MustCompile(`(^|[` + space + `])#(\w+)`)
	mentionRe = regexp.MustCompile(`(^|[` + space + `])@(\w+)`)
)

// space is the Unicode whitespace set used to delimit links and tags. RE2's
// \s only covers ASCII.
const space = `\t\n\v\f\r \x{00a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}`

// Escape escapes the characters that are special in HTML.
func Escape(s string) string {
	return escaper.Replace(s)
}

// HTML escapes text and turns URLs, #hashtags and @mentions into links.
func HTML(text string) string {
	out := urlRe.ReplaceAllString(Escape(text), `<a href="$1" target="_blank" rel="noopener">$1</a>`)
	out = hashtagRe.ReplaceAllString(out, `$1<a href="#" class="th-hashtag">#$2</a>`)
	return mentionRe.ReplaceAllString(out, `$1<a href="#" class="th-mention">@$2</a>`)
}
