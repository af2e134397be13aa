// Package service implements the blog operations: each one resolves the
// actor's rights through the policy package and then reads or mutates the
// store inside a single transaction.
package service

import (
	"encoding/json"
	"strings"

	"quill/internal/models"
	"quill/internal/observability"
	"quill/internal/policy"
	"quill/internal/query"
	"quill/internal/validation"
)

// authorize checks op for actor and records the outcome.
func authorize(actor *models.User, op policy.Operation, res policy.Resource) error {
	err := policy.Authorize(actor, op, res)
	observability.RecordDecision(string(op), err == nil)
	return err
}

func recordDecision(op policy.Operation, d policy.Decision) {
	observability.RecordDecision(string(op), d.Allowed)
}

// NullableID distinguishes an absent JSON field from an explicit null.
type NullableID struct {
	Set   bool
	Value *uint
}

// UnmarshalJSON is only called when the field is present.
func (n *NullableID) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var id uint
	if err := json.Unmarshal(data, &id); err != nil {
		return models.NewValidationError("category_id must be an id or null")
	}
	n.Value = &id
	return nil
}

// NullableString distinguishes an absent JSON field from an explicit null.
type NullableString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON is only called when the field is present.
func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return models.NewValidationError("description must be a string or null")
	}
	n.Value = &s
	return nil
}

func validationErr(err error) error {
	if err == nil {
		return nil
	}
	return models.NewValidationError(err.Error())
}

func validateTitle(title string) error {
	return validationErr(validation.ValidateName("title", title))
}

func validatePostBody(body string) error {
	return validationErr(validation.ValidateText("body", body, validation.MinPostBodyLength))
}

func validateCommentBody(body string) error {
	return validationErr(validation.ValidateText("body", body, validation.MinCommentBodyLength))
}

func parseStatus(raw string) (models.PostStatus, error) {
	status := models.PostStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", models.NewValidationError("status must be draft or published")
	}
	return status, nil
}

// normalizePage clamps paging input the same way post listings are clamped.
func normalizePage(page, perPage int) (int, int) {
	if perPage == 0 {
		perPage = query.DefaultPerPage
	}
	return query.ClampPage(page), min(max(perPage, 1), query.MaxPerPage)
}
