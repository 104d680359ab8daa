package helpers

import (
	"strconv"
	"strings"
)

// ParseCount parses a displayed counter such as "1,234". Thousands separators
// are stripped; anything that is not then purely ASCII digits yields ok=false and 0.
func ParseCount(text string) (n int, ok bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if cleaned == "" {
		return 0, false
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ResolveURL prefixes baseURL onto site-relative hrefs and leaves every other href unchanged
func ResolveURL(baseURL, href string) string {
	if strings.HasPrefix(href, "/") {
		return strings.TrimSuffix(baseURL, "/") + href
	}
	return href
}
