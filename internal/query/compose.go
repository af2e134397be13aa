package query

import (
	"time"

	"quill/internal/models"
)

// ComposeOptions adjusts how criteria are scoped to the caller.
type ComposeOptions struct {
	// ScopeStatusToOwner restricts non-published listings to the caller's own posts.
	ScopeStatusToOwner bool
}

// PostQuery is a fully resolved post listing: the visibility base filter is
// applied and ordering is total.
type PostQuery struct {
	Status     models.PostStatus
	OwnerID    *uint
	Text       string
	CategoryID *uint
	TagIDs     []uint
	AuthorID   *uint
	From       *time.Time
	To         *time.Time
	Sort       Sort
	Page       int
	PerPage    int
}

// Compose resolves criteria for actor. Anonymous callers and callers without
// an explicit status only see published posts. An authenticated caller's
// explicit status is honored as given unless opts scopes it to the owner.
func Compose(actor *models.User, c PostCriteria, opts ComposeOptions) PostQuery {
	q := PostQuery{
		Status:     models.PostStatusPublished,
		Text:       c.Text,
		CategoryID: c.CategoryID,
		TagIDs:     c.TagIDs,
		AuthorID:   c.AuthorID,
		From:       c.From,
		To:         c.To,
		Sort:       c.Sort,
		Page:       c.Page,
		PerPage:    c.PerPage,
	}
	if q.Sort == "" {
		q.Sort = SortRecent
	}
	q.Page = ClampPage(q.Page)
	if q.PerPage == 0 {
		q.PerPage = DefaultPerPage
	}
	q.PerPage = min(max(q.PerPage, 1), MaxPerPage)

	if actor != nil && c.Status != nil {
		q.Status = *c.Status
		if opts.ScopeStatusToOwner && q.Status != models.PostStatusPublished {
			id := actor.ID
			q.OwnerID = &id
		}
	}
	return q
}

// Offset returns the row offset of the requested page.
func (q PostQuery) Offset() int {
	return (q.Page - 1) * q.PerPage
}

// OrderBy returns ORDER BY terms for s. Every ordering ends on the primary key
// so rows sharing a sort key keep a stable position across pages. Popular
// ordering expects a likes_count column in the select list.
func (s Sort) OrderBy() []string {
	switch s {
	case SortOldest:
		return []string{"posts.created_at ASC", "posts.id ASC"}
	case SortPopular:
		return []string{"likes_count DESC", "posts.created_at DESC", "posts.id DESC"}
	default:
		return []string{"posts.created_at DESC", "posts.id DESC"}
	}
}
