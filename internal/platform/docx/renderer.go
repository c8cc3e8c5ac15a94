package docx

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/unidoc/unioffice/v2/document"
)

// ErrEmptyContent is returned when there is no text to render.
var ErrEmptyContent = errors.New("document content cannot be empty")

// Renderer converts generated plain text into .docx files. It is stateless
// and safe for concurrent use.
type Renderer struct{}

// NewRenderer creates a document renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render produces a Word document with the given title as a heading and the
// body text below it, one paragraph per blank-line-separated block. Returns
// the serialized .docx bytes.
func (r *Renderer) Render(title, body string) ([]byte, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyContent
	}

	doc := document.New()
	defer doc.Close()

	if title != "" {
		heading := doc.AddParagraph()
		heading.SetStyle("Title")
		heading.AddRun().AddText(title)
	}

	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		para := doc.AddParagraph()
		run := para.AddRun()
		// Single newlines inside a block become soft line breaks.
		for i, line := range strings.Split(block, "\n") {
			if i > 0 {
				run.AddBreak()
			}
			run.AddText(line)
		}
	}

	var buf bytes.Buffer
	if err := doc.Save(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}

	return buf.Bytes(), nil
}
