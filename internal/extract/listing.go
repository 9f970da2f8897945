// Package extract turns the council's advertised-DA page into candidate records.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/council-da-scraper/internal/da"
)

// Selectors locates the structural pieces of the listing page.
type Selectors struct {
	Container  string
	Item       string
	Link       string
	Reference  string
	Address    string
	Pagination string
}

// DefaultSelectors matches the Clarence Valley Council advertised-DA markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Container:  "div.da-list-container",
		Item:       "article",
		Link:       "a",
		Reference:  "p.da-application-number",
		Address:    "p.list-item-address",
		Pagination: "div.seamless-pagination-info",
	}
}

// Config controls a ListingExtractor.
type Config struct {
	Selectors    Selectors
	Jurisdiction string
	Description  DescriptionRule
}

// ListingExtractor implements da.Extractor over goquery.
type ListingExtractor struct {
	sel          Selectors
	jurisdiction string
	description  DescriptionRule
}

// New builds a ListingExtractor, filling unset selectors and rule with defaults.
func New(cfg Config) *ListingExtractor {
	sel := withDefaults(cfg.Selectors)
	rule := cfg.Description
	if rule == nil {
		rule = FirstClasslessParagraph{}
	}
	return &ListingExtractor{
		sel:          sel,
		jurisdiction: cfg.Jurisdiction,
		description:  rule,
	}
}

// Extract parses page.Body. A missing list container is an error; per-item gaps are
// left in the candidates for the caller to validate.
func (e *ListingExtractor) Extract(page da.Page) (da.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return da.Listing{}, fmt.Errorf("parse listing html: %w", err)
	}
	return e.ExtractDocument(doc)
}

// ExtractDocument runs both passes over an already parsed document.
func (e *ListingExtractor) ExtractDocument(doc *goquery.Document) (da.Listing, error) {
	container := doc.Find(e.sel.Container).First()
	if container.Length() == 0 {
		return da.Listing{}, da.ErrListContainerMissing
	}

	items := container.Find(e.sel.Item)
	candidates := make([]da.Candidate, 0, items.Length())
	items.Each(func(_ int, item *goquery.Selection) {
		candidates = append(candidates, e.candidate(item))
	})

	return da.Listing{
		Candidates: candidates,
		Pagination: e.pagination(doc),
	}, nil
}

func (e *ListingExtractor) candidate(item *goquery.Selection) da.Candidate {
	link := item.Find(e.sel.Link).First()
	if link.Length() == 0 {
		return da.Candidate{}
	}
	href, _ := link.Attr("href")

	description := ""
	if text, ok := e.description.Description(link); ok {
		description = da.CleanWhitespace(text)
	}

	return da.Candidate{
		CouncilReference: firstText(item, e.sel.Reference),
		Address:          da.NormalizeAddress(firstText(item, e.sel.Address), e.jurisdiction),
		Description:      description,
		InfoURL:          href,
		HasLink:          true,
	}
}

func (e *ListingExtractor) pagination(doc *goquery.Document) da.Pagination {
	summary := doc.Find(e.sel.Pagination).First()
	if summary.Length() == 0 {
		return da.Pagination{}
	}
	return da.Pagination{Present: true, Text: da.CleanWhitespace(summary.Text())}
}

func firstText(s *goquery.Selection, selector string) string {
	return strings.TrimSpace(s.Find(selector).First().Text())
}

func withDefaults(sel Selectors) Selectors {
	def := DefaultSelectors()
	if sel.Container == "" {
		sel.Container = def.Container
	}
	if sel.Item == "" {
		sel.Item = def.Item
	}
	if sel.Link == "" {
		sel.Link = def.Link
	}
	if sel.Reference == "" {
		sel.Reference = def.Reference
	}
	if sel.Address == "" {
		sel.Address = def.Address
	}
	if sel.Pagination == "" {
		sel.Pagination = def.Pagination
	}
	return sel
}
