package utils

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const snippetMaxLength = 160

// SnippetFromBody derives a short plain-text preview when the provider did
// not supply one. HTML bodies are stripped of markup first.
func SnippetFromBody(bodyText, bodyHTML string) string {
	source := bodyText
	if source == "" && bodyHTML != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(bodyHTML))
		if err == nil {
			doc.Find("style,script,head").Remove()
			source = doc.Text()
		}
	}

	source = strings.Join(strings.Fields(source), " ")
	if len(source) > snippetMaxLength {
		source = strings.TrimSpace(source[:snippetMaxLength])
	}
	return source
}
