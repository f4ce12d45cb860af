package actions

import "context"

// PendingNavigation is the click deferred across a page load by a
// nav_then_click action.
type PendingNavigation struct {
	URL        string `json:"url"`
	Selector   string `json:"selector,omitempty"`
	OnLoadText string `json:"onLoadText,omitempty"`
}

// MetadataStore persists the per-message processed flags and the pending
// navigation slot. Implementations must be safe for concurrent use.
type MetadataStore interface {
	IsActionProcessed(ctx context.Context, messageID string) (bool, error)
	MarkActionProcessed(ctx context.Context, messageID string) error
	SavePendingNavigation(ctx context.Context, nav PendingNavigation) error
	// TakePendingNavigation returns and clears the pending navigation;
	// nil when none is stored.
	TakePendingNavigation(ctx context.Context) (*PendingNavigation, error)
	Close() error
}
