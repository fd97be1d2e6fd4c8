// Package probe turns a username into a status classification for one
// platform. A Factory opens one Session per worker; each Session owns its
// transport for the lifetime of the worker.
package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"social-checker/internal/platform"
	"social-checker/pkg/httpclient"
	"social-checker/pkg/types"
	"social-checker/pkg/utils"
)

// Factory opens transport sessions for workers
type Factory interface {
	Open(ctx context.Context, workerID int) (Session, error)
}

// Session checks usernames. It is used by a single worker only.
type Session interface {
	Check(ctx context.Context, username string) (types.ProbeOutcome, error)
	Close() error
}

// FactoryFunc adapts a function to Factory
type FactoryFunc func(ctx context.Context, workerID int) (Session, error)

func (f FactoryFunc) Open(ctx context.Context, workerID int) (Session, error) {
	return f(ctx, workerID)
}

// ProbeError is a per-item failure: network error, timeout or bad content
type ProbeError struct {
	Username string
	URL      string
	Err      error
}

func (e *ProbeError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("probe %s (%s): %v", e.Username, e.URL, e.Err)
	}
	return fmt.Sprintf("probe %s: %v", e.Username, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Classify maps a fetched page to a status:
// 404 is suspended; a 2xx page is suspended when it carries an unavailable
// marker, live when it carries a present marker and unknown otherwise; any
// other status code is an error.
func Classify(p platform.Platform, page httpclient.Page) types.ProbeOutcome {
	switch {
	case page.StatusCode == 404:
		return types.ProbeOutcome{Status: types.Suspended, Diagnostic: "not found (404)"}
	case page.StatusCode < 200 || page.StatusCode > 299:
		return types.ProbeOutcome{Status: types.Error, Diagnostic: fmt.Sprintf("unexpected status %d", page.StatusCode)}
	}

	if isJSON(page) {
		if outcome, ok := classifyJSON(p, page.Body); ok {
			return outcome
		}
	}

	content := searchableText(page.Body)
	if m, ok := utils.ContainsAny(content, normalized(p.UnavailableMarkers)); ok {
		return types.ProbeOutcome{Status: types.Suspended, Diagnostic: "marker: " + m}
	}
	if m, ok := utils.ContainsAny(content, normalized(p.PresentMarkers)); ok {
		return types.ProbeOutcome{Status: types.Live, Diagnostic: "marker: " + m}
	}
	return types.ProbeOutcome{Status: types.Unknown, Diagnostic: "no marker matched"}
}

func isJSON(page httpclient.Page) bool {
	if strings.Contains(strings.ToLower(page.ContentType), "json") {
		return true
	}
	return gjson.Valid(page.Body)
}

func classifyJSON(p platform.Platform, body string) (types.ProbeOutcome, bool) {
	if p.UnavailableJSONPath != "" {
		if r := gjson.Get(body, p.UnavailableJSONPath); r.Exists() && r.Type != gjson.Null && r.Type != gjson.False {
			return types.ProbeOutcome{Status: types.Suspended, Diagnostic: "json: " + p.UnavailableJSONPath}, true
		}
	}
	if p.PresentJSONPath != "" {
		if r := gjson.Get(body, p.PresentJSONPath); r.Exists() && r.Type != gjson.Null {
			return types.ProbeOutcome{Status: types.Live, Diagnostic: "json: " + p.PresentJSONPath}, true
		}
	}
	return types.ProbeOutcome{}, false
}

// searchableText returns the lower-cased page with entities decoded.
// Title, meta descriptions and visible text come first, then the raw markup
// so markers embedded in scripts still match.
func searchableText(body string) string {
	var sb strings.Builder

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err == nil {
		sb.WriteString(doc.Find("title").Text())
		sb.WriteByte('\n')
		doc.Find(`meta[name="description"], meta[property="og:description"], meta[property="og:title"]`).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr("content"); ok {
				sb.WriteString(v)
				sb.WriteByte('\n')
			}
		})
		doc.Find("script, style").Remove()
		sb.WriteString(doc.Find("body").Text())
		sb.WriteByte('\n')
	}
	sb.WriteString(body)

	return strings.ToLower(utils.NormalizeQuotes(sb.String()))
}

func normalized(markers []string) []string {
	out := make([]string, len(markers))
	for i, m := range markers {
		out[i] = utils.NormalizeQuotes(m)
	}
	return out
}
