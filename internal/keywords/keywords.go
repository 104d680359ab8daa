// Package keywords ranks words appearing in post titles.
package keywords

import (
	"regexp"
	"sort"
	"strings"
)

var wordPattern = regexp.MustCompile(`[가-힣]{2,}|[a-zA-Z]{2,}`)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"the", "a", "an", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did", "will", "would", "could", "should",
		"jpg", "gif", "png", "jpeg", "ㅋㅋ", "ㅋㅋㅋ", "ㅋㅋㅋㅋ", "ㅎㅎ", "ㅎㅎㅎ",
		"있는", "하는", "되는", "했다", "한다", "이다", "있다", "없다", "된다",
		"그리고", "하지만", "그런데", "그래서", "또한", "이런", "저런", "어떤",
	} {
		stopwords[w] = struct{}{}
	}
}

// Keyword is one ranked entry of the report
type Keyword struct {
	Rank    int    `json:"rank"`
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// Extract returns the Hangul and Latin words of at least two characters in
// title, minus stopwords, in order of appearance
func Extract(title string) []string {
	var words []string
	for _, w := range wordPattern.FindAllString(title, -1) {
		if _, stop := stopwords[strings.ToLower(w)]; stop {
			continue
		}
		words = append(words, w)
	}
	return words
}

// Top counts the words of all titles and returns the limit most frequent.
// Equal counts keep the order in which the words first appeared.
func Top(titles []string, limit int) []Keyword {
	counts := make(map[string]int)
	var order []string
	for _, title := range titles {
		for _, w := range Extract(title) {
			if counts[w] == 0 {
				order = append(order, w)
			}
			counts[w]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if limit >= 0 && len(order) > limit {
		order = order[:limit]
	}

	out := make([]Keyword, 0, len(order))
	for i, w := range order {
		out = append(out, Keyword{Rank: i + 1, Keyword: w, Count: counts[w]})
	}
	return out
}
