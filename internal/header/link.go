// Package header decodes the pagination and backoff hints that a journal
// attaches to its responses.
//
// Both functions are pure: they never touch the network and keep no state,
// so they are safe to call from any goroutine.
package header

import (
	"net/url"
	"strings"
)

// ParseLink decodes an RFC 5988 Link header value into a map of relation
// type to absolute URL.
//
// Each target URI is resolved against base, so a page can link to its
// successor with a relative reference. Absolute targets are returned as-is.
// If base is empty or cannot be parsed, relative targets are returned
// unresolved.
//
// An empty value yields an empty, non-nil map. Malformed entries are
// skipped rather than failing the whole header. When a relation appears in
// more than one entry, the last one wins.
//
// Example:
//
//	links := header.ParseLink("https://host.com", `</path>; rel="next"`)
//	// links["next"] == "https://host.com/path"
func ParseLink(base, value string) map[string]string {
	links := make(map[string]string)

	var baseURL *url.URL
	if base != "" {
		if u, err := url.Parse(base); err == nil {
			baseURL = u
		}
	}

	for _, entry := range split(value, ',') {
		target, params, ok := parseEntry(entry)
		if !ok {
			continue
		}

		rel := params["rel"]
		if rel == "" {
			continue
		}

		resolved, ok := resolve(baseURL, target)
		if !ok {
			continue
		}

		// a quoted rel may carry several space separated relation types
		for _, r := range strings.Fields(rel) {
			links[strings.ToLower(r)] = resolved
		}
	}

	return links
}

// parseEntry splits a single link-value into its target and parameters.
// Parameter names are lower-cased; only the first occurrence of each name
// is kept (RFC 5988 §5.3).
func parseEntry(entry string) (string, map[string]string, bool) {
	entry = strings.TrimSpace(entry)
	if !strings.HasPrefix(entry, "<") {
		return "", nil, false
	}

	end := strings.IndexByte(entry, '>')
	if end == -1 {
		return "", nil, false
	}
	target := strings.TrimSpace(entry[1:end])

	params := make(map[string]string)
	for _, p := range split(entry[end+1:], ';') {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		name, value, found := strings.Cut(p, "=")
		if !found {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if _, seen := params[name]; seen {
			continue
		}
		params[name] = unquote(strings.TrimSpace(value))
	}

	return target, params, true
}

// split cuts s at every sep that is not inside <...> or a quoted string.
func split(s string, sep byte) []string {
	var (
		parts   []string
		start   int
		inAngle bool
		inQuote bool
		escaped bool
	)

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch {
		case escaped:
			escaped = false
		case inQuote && c == '\\':
			escaped = true
		case c == '"' && !inAngle:
			inQuote = !inQuote
		case c == '<' && !inQuote:
			inAngle = true
		case c == '>' && !inQuote:
			inAngle = false
		case c == sep && !inAngle && !inQuote:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}

	if rest := s[start:]; strings.TrimSpace(rest) != "" {
		parts = append(parts, rest)
	}
	return parts
}

// unquote strips surrounding double quotes and backslash escapes.
func unquote(v string) string {
	if len(v) < 2 || v[0] != '"' || v[len(v)-1] != '"' {
		return v
	}

	v = v[1 : len(v)-1]
	if !strings.Contains(v, `\`) {
		return v
	}

	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) {
			i++
		}
		b.WriteByte(v[i])
	}
	return b.String()
}

func resolve(base *url.URL, target string) (string, bool) {
	ref, err := url.Parse(target)
	if err != nil {
		return "", false
	}
	if base == nil {
		return ref.String(), true
	}
	return base.ResolveReference(ref).String(), true
}
