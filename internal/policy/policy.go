// Package policy decides who may see and who may change blog content.
//
// Every function takes the acting user explicitly; a nil *models.User is an
// anonymous caller. Nothing here touches storage.
package policy

import (
	"quill/internal/featureflags"
	"quill/internal/models"
)

// FlagSource evaluates feature flags for a user.
type FlagSource interface {
	Enabled(name string, userID uint) bool
}

// Policy evaluates visibility and authorization rules.
type Policy struct {
	flags FlagSource
}

// New returns a Policy. flags may be nil, in which case every flag is off.
func New(flags FlagSource) *Policy {
	return &Policy{flags: flags}
}

func (p *Policy) flag(name string, actor *models.User) bool {
	if p == nil || p.flags == nil || actor == nil {
		return false
	}
	return p.flags.Enabled(name, actor.ID)
}

// CanView reports whether actor may read post. Published posts are public;
// drafts are visible to their author only.
func (p *Policy) CanView(actor *models.User, post *models.Post) bool {
	if post == nil {
		return false
	}
	if post.Status == models.PostStatusPublished {
		return true
	}
	if actor == nil {
		return false
	}
	if actor.ID == post.UserID {
		return true
	}
	return actor.IsAdmin() && p.flag(featureflags.AdminDraftVisibility, actor)
}

// CanViewComment reports whether actor may read comment under post. A comment
// that does not belong to post is never visible.
func (p *Policy) CanViewComment(actor *models.User, post *models.Post, comment *models.Comment) bool {
	if comment == nil || post == nil || comment.PostID != post.ID {
		return false
	}
	return p.CanView(actor, post)
}

// ScopesStatusFilter reports whether non-published listings requested by
// actor are limited to actor's own posts.
func (p *Policy) ScopesStatusFilter(actor *models.User) bool {
	return p.flag(featureflags.ScopedStatusFilter, actor)
}
