package document

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

func convertPDF(_ context.Context, data []byte) (out string, err error) {
	// the pdf reader panics on some corrupt xref tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	text, err := io.ReadAll(textReader)
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	return paragraphsToHTML(string(text)), nil
}

// paragraphsToHTML keeps blank line separated blocks as paragraphs and
// reflows single line breaks inside a block into spaces.
func paragraphsToHTML(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	var sb strings.Builder
	var block []string
	flush := func() {
		if len(block) == 0 {
			return
		}
		sb.WriteString("<p>")
		sb.WriteString(html.EscapeString(strings.Join(block, " ")))
		sb.WriteString("</p>")
		block = block[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()
	return sb.String()
}
