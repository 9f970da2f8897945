package da

import "errors"

var (
	// ErrListContainerMissing means the page no longer has the DA list container.
	ErrListContainerMissing = errors.New("could not find DA list container")
	// ErrMultiplePages means the pagination summary implies more than one page.
	ErrMultiplePages = errors.New("multiple pages detected but pagination not implemented")
	// ErrPaginationUndetermined means no pagination summary was found.
	ErrPaginationUndetermined = errors.New("unable to detect if further pages exist")
	// ErrMissingLink marks a listing item without a detail link.
	ErrMissingLink = errors.New("no detail link")
	// ErrMissingField marks a listing item lacking a required field.
	ErrMissingField = errors.New("missing required field")
)
