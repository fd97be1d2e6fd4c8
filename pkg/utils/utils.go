package utils

import (
	"net/url"
	"strings"
	"sync"
)

var (
	// Pool for reusing strings.Builder to reduce allocations
	stringBuilderPool = sync.Pool{
		New: func() interface{} {
			return &strings.Builder{}
		},
	}
)

// getStringBuilder gets a string builder from the pool
func getStringBuilder() *strings.Builder {
	return stringBuilderPool.Get().(*strings.Builder)
}

// putStringBuilder returns a string builder to the pool
func putStringBuilder(sb *strings.Builder) {
	sb.Reset()
	stringBuilderPool.Put(sb)
}

// URLEncode escapes text for use as a URL path segment
func URLEncode(text string) string {
	return url.PathEscape(text)
}

// ExpandTemplate replaces every {username} placeholder with the escaped username
func ExpandTemplate(template, username string) string {
	const placeholder = "{username}"

	sb := getStringBuilder()
	defer putStringBuilder(sb)

	escaped := URLEncode(username)
	rest := template
	for {
		i := strings.Index(rest, placeholder)
		if i == -1 {
			sb.WriteString(rest)
			break
		}
		sb.WriteString(rest[:i])
		sb.WriteString(escaped)
		rest = rest[i+len(placeholder):]
	}
	return sb.String()
}

// ContainsAny reports whether content contains any of the markers.
// content is expected to be lower-cased already; markers are lower-cased here.
func ContainsAny(content string, markers []string) (string, bool) {
	for _, m := range markers {
		if m == "" {
			continue
		}
		if strings.Contains(content, strings.ToLower(m)) {
			return m, true
		}
	}
	return "", false
}

// NormalizeQuotes folds typographic apostrophes so "doesn’t" matches "doesn't"
func NormalizeQuotes(s string) string {
	return strings.NewReplacer("’", "'", "‘", "'").Replace(s)
}
