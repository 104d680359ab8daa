package crawler

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CellRole names a cell of a listing row by what it holds rather than by selector
type CellRole string

const (
	RoleTitle        CellRole = "title"
	RoleCategory     CellRole = "category"
	RoleViewCount    CellRole = "view_count"
	RoleCommentCount CellRole = "comment_count"
	RolePostedAt     CellRole = "posted_at"
)

// Node is an element of the document
type Node interface {
	// Text returns the element's visible text, trimmed
	Text() string
	Attr(name string) (string, bool)
}

// Row is one row-like element of the listing
type Row interface {
	HasClass(class string) bool
	// Cell returns the first element playing the role, if any
	Cell(role CellRole) (Node, bool)
	// Links returns the anchors inside the cell playing the role, in document order
	Links(role CellRole) []Node
}

// Document exposes the listing rows of a parsed page
type Document interface {
	Rows() []Row
}

// NewDocument parses HTML into a goquery-backed Document
func NewDocument(r io.Reader, selectors Selectors) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return &goqueryDocument{doc: doc, selectors: selectors}, nil
}

type goqueryDocument struct {
	doc       *goquery.Document
	selectors Selectors
}

func (d *goqueryDocument) Rows() []Row {
	var rows []Row
	d.doc.Find(d.selectors.PostList).Each(func(_ int, s *goquery.Selection) {
		rows = append(rows, &goqueryRow{sel: s, selectors: d.selectors})
	})
	return rows
}

type goqueryRow struct {
	sel       *goquery.Selection
	selectors Selectors
}

func (r *goqueryRow) HasClass(class string) bool {
	return class != "" && r.sel.HasClass(class)
}

func (r *goqueryRow) find(role CellRole) *goquery.Selection {
	selector := r.selectors.forRole(role)
	if selector == "" {
		return nil
	}
	found := r.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil
	}
	return found
}

func (r *goqueryRow) Cell(role CellRole) (Node, bool) {
	found := r.find(role)
	if found == nil {
		return nil, false
	}
	return goqueryNode{sel: found}, true
}

func (r *goqueryRow) Links(role CellRole) []Node {
	found := r.find(role)
	if found == nil {
		return nil
	}
	var links []Node
	found.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		links = append(links, goqueryNode{sel: a})
	})
	return links
}

type goqueryNode struct {
	sel *goquery.Selection
}

func (n goqueryNode) Text() string {
	return strings.TrimSpace(n.sel.Text())
}

func (n goqueryNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

func (s Selectors) forRole(role CellRole) string {
	switch role {
	case RoleTitle:
		return s.Title
	case RoleCategory:
		return s.Category
	case RoleViewCount:
		return s.ViewCount
	case RoleCommentCount:
		return s.CommentCount
	case RolePostedAt:
		return s.PostedAt
	default:
		return ""
	}
}
