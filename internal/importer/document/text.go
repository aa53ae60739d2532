package document

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

func convertText(_ context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text is not valid utf-8")
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	return "<pre>" + html.EscapeString(string(data)) + "</pre>", nil
}

func convertMarkdown(_ context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("markdown is not valid utf-8")
	}
	var out bytes.Buffer
	if err := markdown.Convert(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), &out); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out.String(), nil
}
