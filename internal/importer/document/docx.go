package document

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const docxBodyPath = "word/document.xml"

var headingStyles = map[string]string{
	"title":    "h1",
	"heading1": "h1",
	"heading2": "h2",
	"heading3": "h3",
	"heading4": "h4",
	"heading5": "h5",
	"heading6": "h6",
}

// elements whose content cannot be represented and is dropped
var droppedElements = map[string]string{
	"drawing":  "embedded image dropped",
	"pict":     "embedded picture dropped",
	"object":   "embedded object dropped",
	"footnote": "footnote dropped",
}

func convertDOCX(ctx context.Context, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBodyPath {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("docx has no %s", docxBodyPath)
	}
	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", docxBodyPath, err)
	}
	defer rc.Close()
	out, warnings, err := docxToHTML(rc)
	if err != nil {
		return "", err
	}
	for _, w := range warnings {
		logutil.GetLogger(ctx).Warn("docx conversion warning", zap.String("warning", w))
	}
	return out, nil
}

type docxConverter struct {
	out      strings.Builder
	para     strings.Builder
	run      strings.Builder
	paraTag  string
	isList   bool
	inList   bool
	inRun    bool
	inText   bool
	bold     bool
	italic   bool
	under    bool
	skip     int
	warnings []string
	seen     map[string]struct{}
}

func docxToHTML(r io.Reader) (string, []string, error) {
	c := &docxConverter{seen: make(map[string]struct{})}
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("decode %s: %w", docxBodyPath, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			c.start(t)
		case xml.EndElement:
			c.end(t)
		case xml.CharData:
			if c.inText && c.skip == 0 {
				c.run.WriteString(html.EscapeString(string(t)))
			}
		}
	}
	c.closeList()
	return c.out.String(), c.warnings, nil
}

func (c *docxConverter) warn(msg string) {
	if _, ok := c.seen[msg]; ok {
		return
	}
	c.seen[msg] = struct{}{}
	c.warnings = append(c.warnings, msg)
}

func (c *docxConverter) start(t xml.StartElement) {
	if msg, ok := droppedElements[t.Name.Local]; ok {
		c.warn(msg)
		c.skip++
		return
	}
	if c.skip > 0 {
		return
	}
	switch t.Name.Local {
	case "p":
		c.para.Reset()
		c.paraTag = "p"
		c.isList = false
	case "pStyle":
		style := strings.ToLower(attr(t, "val"))
		if tag, ok := headingStyles[style]; ok {
			c.paraTag = tag
		} else if strings.HasPrefix(style, "list") {
			c.isList = true
		}
	case "numPr":
		c.isList = true
	case "r":
		c.inRun = true
		c.run.Reset()
		c.bold, c.italic, c.under = false, false, false
	case "b":
		c.bold = c.inRun && toggleOn(t)
	case "i":
		c.italic = c.inRun && toggleOn(t)
	case "u":
		c.under = c.inRun && attr(t, "val") != "none" && toggleOn(t)
	case "t":
		c.inText = true
	case "br", "cr":
		if c.inRun {
			c.run.WriteString("<br>")
		}
	case "tab":
		if c.inRun {
			c.run.WriteString(" ")
		}
	case "tbl":
		c.warn("table flattened to paragraphs")
	}
}

func (c *docxConverter) end(t xml.EndElement) {
	if _, ok := droppedElements[t.Name.Local]; ok {
		if c.skip > 0 {
			c.skip--
		}
		return
	}
	if c.skip > 0 {
		return
	}
	switch t.Name.Local {
	case "t":
		c.inText = false
	case "r":
		c.para.WriteString(c.wrapRun(c.run.String()))
		c.inRun = false
	case "p":
		c.flushParagraph()
	}
}

func (c *docxConverter) wrapRun(text string) string {
	if text == "" {
		return ""
	}
	if c.under {
		text = "<u>" + text + "</u>"
	}
	if c.italic {
		text = "<em>" + text + "</em>"
	}
	if c.bold {
		text = "<strong>" + text + "</strong>"
	}
	return text
}

func (c *docxConverter) flushParagraph() {
	text := c.para.String()
	c.para.Reset()
	if c.isList {
		if !c.inList {
			c.out.WriteString("<ul>")
			c.inList = true
		}
		c.out.WriteString("<li>" + text + "</li>")
		return
	}
	c.closeList()
	if strings.TrimSpace(text) == "" {
		return
	}
	c.out.WriteString("<" + c.paraTag + ">" + text + "</" + c.paraTag + ">")
}

func (c *docxConverter) closeList() {
	if c.inList {
		c.out.WriteString("</ul>")
		c.inList = false
	}
}

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// toggleOn reads an OOXML on/off property such as <w:b/> or <w:b w:val="0"/>.
func toggleOn(t xml.StartElement) bool {
	switch strings.ToLower(attr(t, "val")) {
	case "0", "false", "off":
		return false
	}
	return true
}
