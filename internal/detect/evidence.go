package detect

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ysmood/gson"

	"github.com/PentesterFlow/OpenSQLi/internal/executor"
)

// errorFields are the JSON keys APIs commonly park their error text in.
var errorFields = []string{"error", "message", "detail", "errors.0.message", "error.message"}

// maxEvidenceLen caps a single evidence string in a report.
const maxEvidenceLen = 300

// enrichEvidence decorates the signature context with whatever structured
// error text the response format offers: the page title for HTML, the
// error field for JSON.
func enrichEvidence(context string, result *executor.ProbeResult) string {
	evidence := strings.TrimSpace(context)

	switch {
	case executor.IsHTML(result.ContentType):
		if title := htmlTitle(result.BodyExcerpt); title != "" {
			evidence = "page title: " + title + "; " + evidence
		}
	case executor.IsJSON(result.ContentType):
		if msg := jsonErrorField(result.BodyExcerpt); msg != "" {
			evidence = "error field: " + msg + "; " + evidence
		}
	}

	return clip(evidence, maxEvidenceLen)
}

// htmlTitle extracts the <title> (or first heading) of an error page.
func htmlTitle(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	return clip(title, 120)
}

// jsonErrorField pulls the first populated error-ish field out of a JSON
// body. The excerpt may be truncated mid-document; gson tolerates that for
// fields that fit in the excerpt.
func jsonErrorField(body string) (msg string) {
	// Truncated excerpts can make gson panic on malformed tails.
	defer func() {
		if recover() != nil {
			msg = ""
		}
	}()

	j := gson.NewFrom(body)
	for _, field := range errorFields {
		if !j.Has(field) {
			continue
		}
		if text := strings.TrimSpace(j.Get(field).Str()); text != "" {
			return clip(text, 120)
		}
	}
	return ""
}

// clip truncates a string to max bytes.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
