package crawler

import (
	"fmt"
	"regexp"
	"strings"

	"sjsage522/hotpostcollector/helpers"
)

// ExtractRules holds the site-specific knobs of the row algorithm
type ExtractRules struct {
	BaseURL     string
	ClassFilter string
	LinkFilter  string
	IDExtractor IDExtractorFunc
}

// PathIDExtractor returns an IDExtractorFunc capturing the numeric id after prefix,
// e.g. PathIDExtractor("/hot/") matches "/hot/12345".
func PathIDExtractor(prefix string) IDExtractorFunc {
	re := regexp.MustCompile(regexp.QuoteMeta(prefix) + `(\d+)`)
	return func(link string) (string, error) {
		m := re.FindStringSubmatch(link)
		if m == nil {
			return "", fmt.Errorf("no numeric id after %q in %q", prefix, link)
		}
		return m[1], nil
	}
}

// ExtractPosts runs the row algorithm over every row of doc. Rows that yield no
// candidate are counted by reason and never abort the rest of the page.
func ExtractPosts(doc Document, rules ExtractRules) *Extraction {
	result := &Extraction{
		Skipped:        make(map[SkipReason]int),
		CountFallbacks: make(map[string]int),
	}

	for _, row := range doc.Rows() {
		result.Rows++
		rr := processRow(row, rules)
		for _, field := range rr.Fallbacks {
			result.CountFallbacks[field]++
		}
		if rr.Post == nil {
			result.Skipped[rr.Skip]++
			continue
		}
		result.Posts = append(result.Posts, *rr.Post)
	}

	return result
}

// processRow converts a single row. A panic raised by an unexpected structure is
// reported as SkipMalformed.
func processRow(row Row, rules ExtractRules) (rr RowResult) {
	defer func() {
		if r := recover(); r != nil {
			rr = RowResult{Skip: SkipMalformed}
		}
	}()

	if row.HasClass(rules.ClassFilter) {
		return RowResult{Skip: SkipNotice}
	}

	if _, ok := row.Cell(RoleTitle); !ok {
		return RowResult{Skip: SkipNoTitleCell}
	}

	var link Node
	var href string
	for _, a := range row.Links(RoleTitle) {
		h, _ := a.Attr("href")
		if strings.Contains(h, rules.LinkFilter) {
			link, href = a, h
			break
		}
	}
	if link == nil {
		return RowResult{Skip: SkipNoTitleLink}
	}

	postID, err := rules.IDExtractor(href)
	if err != nil || postID == "" {
		return RowResult{Skip: SkipNoPostID}
	}

	title := link.Text()
	if title == "" {
		return RowResult{Skip: SkipEmptyTitle}
	}

	post := &Post{
		PostID:      postID,
		Title:       title,
		URL:         helpers.ResolveURL(rules.BaseURL, href),
		Category:    cellText(row, RoleCategory),
		PublishedAt: cellText(row, RolePostedAt),
	}

	var fallbacks []string
	if cell, ok := row.Cell(RoleViewCount); ok {
		n, parsed := helpers.ParseCount(cell.Text())
		if !parsed {
			fallbacks = append(fallbacks, "view_count")
		}
		post.ViewCount = n
	}
	if cell, ok := row.Cell(RoleCommentCount); ok {
		n, parsed := helpers.ParseCount(cell.Text())
		if !parsed {
			fallbacks = append(fallbacks, "comment_count")
		}
		post.CommentCount = n
	}

	return RowResult{Post: post, Fallbacks: fallbacks}
}

func cellText(row Row, role CellRole) string {
	if cell, ok := row.Cell(role); ok {
		return cell.Text()
	}
	return ""
}
