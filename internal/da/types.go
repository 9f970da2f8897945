// Package da defines the development-application records scraped from a council
// listing page, plus the interfaces shared by the fetch, extract, and persist stages.
package da

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used for date_scraped.
const DateLayout = "2006-01-02"

// Record is the unit of persistence, keyed by CouncilReference.
type Record struct {
	CouncilReference string    `json:"council_reference"`
	Address          string    `json:"address"`
	Description      string    `json:"description"`
	InfoURL          string    `json:"info_url"`
	DateScraped      time.Time `json:"date_scraped"`
}

// Candidate is a listing item as extracted from the page, before validation.
type Candidate struct {
	CouncilReference string
	Address          string
	Description      string
	InfoURL          string
	HasLink          bool
}

// Validate reports why a candidate cannot be persisted. Items without a detail
// link yield ErrMissingLink; empty required fields yield ErrMissingField.
func (c Candidate) Validate() error {
	if !c.HasLink {
		return ErrMissingLink
	}
	switch {
	case c.CouncilReference == "":
		return fmt.Errorf("%w: council_reference", ErrMissingField)
	case c.Address == "":
		return fmt.Errorf("%w: address", ErrMissingField)
	case c.Description == "":
		return fmt.Errorf("%w: description", ErrMissingField)
	}
	return nil
}

// Record converts a validated candidate into a Record stamped with the given day.
func (c Candidate) Record(day time.Time) (Record, error) {
	if err := c.Validate(); err != nil {
		return Record{}, err
	}
	return Record{
		CouncilReference: c.CouncilReference,
		Address:          c.Address,
		Description:      c.Description,
		InfoURL:          c.InfoURL,
		DateScraped:      DateOf(day),
	}, nil
}

// Page is the fetched listing document. NextPause is the pause the fetcher
// will apply before its next request.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Elapsed    time.Duration
	NextPause  time.Duration
}

// Listing is the result of extracting a page.
type Listing struct {
	Candidates []Candidate
	Pagination Pagination
}

// Pagination captures the pagination summary element, if the page has one.
type Pagination struct {
	Present bool
	Text    string
}

// Check returns nil only when the summary confirms a single page.
func (p Pagination) Check(singlePageText string) error {
	if !p.Present {
		return ErrPaginationUndetermined
	}
	if p.Text != singlePageText {
		return fmt.Errorf("%w: %q", ErrMultiplePages, p.Text)
	}
	return nil
}

// DateOf truncates t to its calendar day, expressed at midnight UTC so that dates
// compare and serialize identically across stores.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a day as YYYY-MM-DD, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
