package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "mailmind/internal/errors"
)

func TestFilterSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    FilterSpec
		wantErr bool
	}{
		{name: "empty view defaults to all", spec: FilterSpec{}},
		{name: "known view", spec: FilterSpec{View: ViewUnread}},
		{name: "known view with query", spec: FilterSpec{View: ViewStarred, Query: "quarterly report"}},
		{name: "unknown view", spec: FilterSpec{View: "archived"}, wantErr: true},
		{name: "typo view", spec: FilterSpec{View: "unred"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperrors.KindInvalidFilter, apperrors.KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFilterSpecDefaults(t *testing.T) {
	var spec FilterSpec
	assert.Equal(t, ViewAll, spec.view())
	assert.Equal(t, int64(DefaultPageSize), spec.pageSize())

	spec.MaxResults = 50
	assert.Equal(t, int64(50), spec.pageSize())
}

func TestGmailQuery(t *testing.T) {
	after := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		spec FilterSpec
		want string
	}{
		{name: "all", spec: FilterSpec{}, want: "in:inbox"},
		{name: "unread", spec: FilterSpec{View: ViewUnread}, want: "in:inbox is:unread"},
		{name: "important", spec: FilterSpec{View: ViewImportant}, want: "is:important"},
		{name: "sent with window", spec: FilterSpec{View: ViewSent, After: after, Before: before}, want: "in:sent after:2025/03/01 before:2025/03/08"},
		{name: "free text", spec: FilterSpec{View: ViewAll, Query: "from:alice"}, want: "in:inbox from:alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gmailQuery(tt.spec))
		})
	}
}

func TestGraphListURL(t *testing.T) {
	t.Run("unread uses filter with ordering", func(t *testing.T) {
		u := graphListURL(FilterSpec{View: ViewUnread})
		assert.Contains(t, u, "%24filter=isRead+eq+false")
		assert.Contains(t, u, "%24orderby=receivedDateTime+desc")
	})

	t.Run("search wins over filter", func(t *testing.T) {
		u := graphListURL(FilterSpec{View: ViewUnread, Query: "invoice"})
		assert.Contains(t, u, "%24search=%22invoice%22")
		assert.NotContains(t, u, "%24filter")
	})

	t.Run("sent uses its folder endpoint", func(t *testing.T) {
		u := graphListURL(FilterSpec{View: ViewSent})
		assert.Contains(t, u, "/mailFolders/sentitems/messages")
	})
}
