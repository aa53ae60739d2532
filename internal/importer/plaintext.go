package importer

import (
	"strings"

	"golang.org/x/net/html"
)

var breakingTags = map[string]struct{}{
	"address": {}, "article": {}, "blockquote": {}, "br": {}, "dd": {}, "div": {},
	"dl": {}, "dt": {}, "en-note": {}, "figcaption": {}, "footer": {}, "h1": {},
	"h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {}, "header": {}, "hr": {},
	"li": {}, "ol": {}, "p": {}, "pre": {}, "section": {}, "table": {}, "td": {},
	"th": {}, "tr": {}, "ul": {},
}

// Plaintext derives the search projection of a note body: markup removed,
// entities decoded and whitespace collapsed.
func Plaintext(content string) string {
	if content == "" {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(content))
	var sb strings.Builder
	skipDepth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				skipDepth++
				continue
			}
			writeBreak(&sb, tag)
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			writeBreak(&sb, tag)
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			writeBreak(&sb, string(name))
		}
	}
}

func writeBreak(sb *strings.Builder, tag string) {
	if _, ok := breakingTags[tag]; ok {
		sb.WriteByte(' ')
	}
}
