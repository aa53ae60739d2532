// Package enml rewrites ENML note bodies into the stored HTML dialect. The
// rewrite is string level; only the ENML specific elements are touched.
package enml

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/xxxsen/noteimport/internal/importer"
)

var (
	xmlDeclPattern  = regexp.MustCompile(`(?is)<\?xml.*?\?>`)
	doctypePattern  = regexp.MustCompile(`(?is)<!DOCTYPE[^>]*>`)
	noteOpenPattern = regexp.MustCompile(`(?is)<en-note\b[^>]*>`)
	noteClosPattern = regexp.MustCompile(`(?i)</en-note\s*>`)
	mediaPattern    = regexp.MustCompile(`(?is)<en-media\b((?:[^>"']|"[^"]*"|'[^']*')*?)/?>(?:\s*</en-media\s*>)?`)
	todoPattern     = regexp.MustCompile(`(?is)<en-todo\b((?:[^>"']|"[^"]*"|'[^']*')*?)/?>(?:\s*</en-todo\s*>)?`)
	cryptPattern    = regexp.MustCompile(`(?is)<en-crypt\b[^>]*?(?:/>|>.*?</en-crypt\s*>)`)
	attrPattern     = regexp.MustCompile(`([a-zA-Z_:][-a-zA-Z0-9_:.]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

const (
	MissingMediaText = "missing attachment"
	CryptText        = "encrypted content"
)

// Translate rewrites an ENML body. Media references resolve through the
// hash keyed table; unresolved ones become inert placeholders.
func Translate(raw string, resolved map[string]importer.Resolved) string {
	out := xmlDeclPattern.ReplaceAllString(raw, "")
	out = doctypePattern.ReplaceAllString(out, "")
	out = noteOpenPattern.ReplaceAllString(out, `<div class="en-note">`)
	out = noteClosPattern.ReplaceAllString(out, "</div>")
	out = cryptPattern.ReplaceAllString(out, `<span class="en-crypt">`+CryptText+`</span>`)
	out = todoPattern.ReplaceAllStringFunc(out, func(tag string) string {
		attrs := parseAttrs(todoPattern.FindStringSubmatch(tag)[1])
		if strings.EqualFold(attrs["checked"], "true") {
			return `<input type="checkbox" disabled checked>`
		}
		return `<input type="checkbox" disabled>`
	})
	out = mediaPattern.ReplaceAllStringFunc(out, func(tag string) string {
		attrs := parseAttrs(mediaPattern.FindStringSubmatch(tag)[1])
		return renderMedia(attrs, resolved)
	})
	return strings.TrimSpace(out)
}

func renderMedia(attrs map[string]string, resolved map[string]importer.Resolved) string {
	hash := strings.ToLower(strings.TrimSpace(attrs["hash"]))
	item, ok := resolved[hash]
	if hash == "" || !ok {
		return fmt.Sprintf(`<span class="media-missing" data-type="%s">%s</span>`,
			html.EscapeString(attrs["type"]), MissingMediaText)
	}
	mimeType := item.MimeType
	if mimeType == "" {
		mimeType = attrs["type"]
	}
	src := html.EscapeString(item.Locator)
	name := html.EscapeString(item.Filename)
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		var sb strings.Builder
		sb.WriteString(`<img src="` + src + `" alt="` + name + `"`)
		for _, key := range []string{"width", "height", "style"} {
			if v := attrs[key]; v != "" {
				sb.WriteString(" " + key + `="` + html.EscapeString(v) + `"`)
			}
		}
		sb.WriteString(">")
		return sb.String()
	case strings.HasPrefix(mimeType, "audio/"):
		return `<audio controls src="` + src + `" title="` + name + `"></audio>`
	case strings.HasPrefix(mimeType, "video/"):
		return `<video controls src="` + src + `" title="` + name + `"></video>`
	default:
		return `<a class="attachment" href="` + src + `" download="` + name + `">` + name + `</a>`
	}
}

func parseAttrs(raw string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(raw, -1) {
		value := m[2]
		if value == "" {
			value = m[3]
		}
		attrs[strings.ToLower(m[1])] = html.UnescapeString(value)
	}
	return attrs
}
