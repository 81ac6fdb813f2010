package content

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Markdown renders src to HTML. Raw HTML in src is not passed through.
func Markdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// AboutHTML renders the about section.
func (s *Site) AboutHTML() (template.HTML, error) {
	return Markdown(s.About)
}

// DescriptionHTML renders the entry's description.
func (t TimelineEntry) DescriptionHTML() (template.HTML, error) {
	return Markdown(t.Description)
}
