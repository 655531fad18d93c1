package provider

import (
	"time"

	apperrors "mailmind/internal/errors"
)

// View is a named mailbox view.
type View string

const (
	ViewAll       View = "all"
	ViewUnread    View = "unread"
	ViewStarred   View = "starred"
	ViewSent      View = "sent"
	ViewDrafts    View = "drafts"
	ViewImportant View = "important"
)

var knownViews = map[View]bool{
	ViewAll:       true,
	ViewUnread:    true,
	ViewStarred:   true,
	ViewSent:      true,
	ViewDrafts:    true,
	ViewImportant: true,
}

// DefaultPageSize bounds a fetch when the caller asks for no explicit
// page size.
const DefaultPageSize = 20

// FilterSpec selects a named view plus optional free-text search and
// time-window predicate. Adapters translate it to the provider's native
// query syntax.
type FilterSpec struct {
	View       View
	Query      string
	After      time.Time
	Before     time.Time
	MaxResults int64
	PageToken  string
}

// Validate rejects unknown view names before any network call is made.
func (f FilterSpec) Validate() error {
	if f.View == "" {
		return nil // empty means ViewAll
	}
	if !knownViews[f.View] {
		return apperrors.Newf(apperrors.KindInvalidFilter, "unsupported filter %q", string(f.View))
	}
	return nil
}

// view returns the effective view with the empty default applied.
func (f FilterSpec) view() View {
	if f.View == "" {
		return ViewAll
	}
	return f.View
}

// pageSize returns the effective page size.
func (f FilterSpec) pageSize() int64 {
	if f.MaxResults <= 0 {
		return DefaultPageSize
	}
	return f.MaxResults
}
