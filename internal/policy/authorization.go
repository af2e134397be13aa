package policy

import (
	"quill/internal/models"
)

// Operation names a guarded mutation.
type Operation string

const (
	OpPostCreate      Operation = "post.create"
	OpPostUpdate      Operation = "post.update"
	OpPostDelete      Operation = "post.delete"
	OpPostForceDelete Operation = "post.force_delete"
	OpPostImage       Operation = "post.image"
	OpPostTags        Operation = "post.tags"
	OpPostLike        Operation = "post.like"
	OpCommentCreate   Operation = "comment.create"
	OpCommentUpdate   Operation = "comment.update"
	OpCommentDelete   Operation = "comment.delete"
	OpCategoryWrite   Operation = "category.write"
	OpTagWrite        Operation = "tag.write"
	OpUserManage      Operation = "user.manage"
)

// Resource is the ownership view of the entity an operation targets.
// Category, tag and user operations need no owner and use NoResource.
type Resource struct {
	OwnerID uint
}

// NoResource is the target of operations that are not owner-scoped.
var NoResource = Resource{}

// PostResource returns the ownership view of post.
func PostResource(post *models.Post) Resource {
	return Resource{OwnerID: post.UserID}
}

// CommentResource returns the ownership view of comment.
func CommentResource(comment *models.Comment) Resource {
	return Resource{OwnerID: comment.UserID}
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow grants an operation.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny refuses an operation with a human-readable reason.
func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Err converts a denial into a Forbidden error and an allow into nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return models.NewForbiddenError(d.Reason)
}

// CanMutate decides whether an authenticated actor may perform op on res.
func CanMutate(actor *models.User, op Operation, res Resource) Decision {
	if actor == nil {
		return Deny("authentication required")
	}
	owner := actor.ID == res.OwnerID

	switch op {
	case OpPostCreate, OpCommentCreate, OpPostLike:
		return Allow()

	case OpPostUpdate, OpPostImage:
		if owner || actor.IsEditorOrAdmin() {
			return Allow()
		}
		return Deny("only the author, an editor or an admin can modify this post")

	case OpPostDelete:
		if owner {
			return Allow()
		}
		return Deny("only the author can delete this post")

	case OpPostForceDelete:
		if actor.IsAdmin() {
			return Allow()
		}
		return Deny("only an admin can permanently delete a post")

	case OpPostTags:
		if owner {
			return Allow()
		}
		return Deny("only the author can change the tags of this post")

	case OpCommentUpdate, OpCommentDelete:
		if owner {
			return Allow()
		}
		return Deny("only the author can modify this comment")

	case OpCategoryWrite, OpTagWrite:
		if actor.IsEditorOrAdmin() {
			return Allow()
		}
		return Deny("editor or admin role required")

	case OpUserManage:
		if actor.IsAdmin() {
			return Allow()
		}
		return Deny("admin role required")
	}

	return Deny("unknown operation")
}

// Authorize is CanMutate for callers that may be anonymous: a nil actor is
// Unauthenticated, a denial is Forbidden.
func Authorize(actor *models.User, op Operation, res Resource) error {
	if actor == nil {
		return models.NewUnauthenticatedError("Authentication required")
	}
	return CanMutate(actor, op, res).Err()
}

// CanComment decides whether a new comment may be attached to post. Only
// published posts accept comments.
func CanComment(post *models.Post) Decision {
	if post == nil || !post.IsPublished() {
		return Deny("comments are only allowed on published posts")
	}
	return Allow()
}
