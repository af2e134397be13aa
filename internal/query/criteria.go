// Package query turns listing and search parameters into a validated,
// visibility-scoped post query with deterministic ordering and pagination.
package query

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"quill/internal/models"
)

// Sort selects the ordering of a post listing.
type Sort string

const (
	SortRecent  Sort = "recent"
	SortOldest  Sort = "oldest"
	SortPopular Sort = "popular"
)

const (
	DefaultPerPage = 15
	MaxPerPage     = 100
	// MaxPage keeps (page-1)*perPage inside a 32-bit OFFSET.
	MaxPage        = math.MaxInt32 / MaxPerPage
	dayLayout      = "2006-01-02"
)

// PostParams holds listing parameters exactly as received.
type PostParams struct {
	Status   string
	Q        string
	Category string
	Tags     string
	Author   string
	DateFrom string
	DateTo   string
	Sort     string
	Page     string
	PerPage  string
}

// PostCriteria is the validated form of PostParams. Nil pointers and empty
// slices mean "no filter".
type PostCriteria struct {
	Status     *models.PostStatus
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

// ParsePostParams validates raw parameters. Malformed dates are dropped and
// an unknown sort falls back to recent; malformed ids or an unknown status
// are validation errors.
func ParsePostParams(p PostParams) (PostCriteria, error) {
	c := PostCriteria{
		Text:    strings.TrimSpace(p.Q),
		Sort:    ParseSort(p.Sort),
		Page:    ParsePage(p.Page),
		PerPage: ClampPerPage(p.PerPage),
		From:    ParseDay(p.DateFrom, false),
		To:      ParseDay(p.DateTo, true),
	}

	if s := strings.TrimSpace(p.Status); s != "" {
		status := models.PostStatus(strings.ToLower(s))
		if !status.Valid() {
			return PostCriteria{}, models.NewValidationError("status must be draft or published")
		}
		c.Status = &status
	}

	var err error
	if c.CategoryID, err = parseOptionalID(p.Category, "category"); err != nil {
		return PostCriteria{}, err
	}
	if c.AuthorID, err = parseOptionalID(p.Author, "author"); err != nil {
		return PostCriteria{}, err
	}
	if c.TagIDs, err = ParseIDList(p.Tags); err != nil {
		return PostCriteria{}, models.NewValidationError("tags must be a comma-separated list of ids")
	}

	return c, nil
}

// ParseSort maps a sort name to a Sort, defaulting to recent.
func ParseSort(raw string) Sort {
	switch Sort(strings.ToLower(strings.TrimSpace(raw))) {
	case SortOldest:
		return SortOldest
	case SortPopular:
		return SortPopular
	default:
		return SortRecent
	}
}

// ParsePage returns the 1-based page number clamped to MaxPage; anything
// invalid is page 1.
func ParsePage(raw string) int {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if errors.Is(err, strconv.ErrRange) && page > 0 {
		return MaxPage
	}
	if err != nil {
		return 1
	}
	return ClampPage(page)
}

// ClampPage returns page clamped to [1, MaxPage].
func ClampPage(page int) int {
	return min(max(page, 1), MaxPage)
}

// ClampPerPage returns the page size clamped to [1, MaxPerPage].
// A missing or non-numeric value yields DefaultPerPage.
func ClampPerPage(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultPerPage
	}
	return min(max(n, 1), MaxPerPage)
}

// ParseDay parses a calendar date and returns its first instant, or its last
// instant when endOfDay is set. Malformed input returns nil.
func ParseDay(raw string, endOfDay bool) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	day, err := time.Parse(dayLayout, raw)
	if err != nil {
		ts, tsErr := time.Parse(time.RFC3339, raw)
		if tsErr != nil {
			return nil
		}
		ts = ts.UTC()
		day = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day
}

// ParseIDList parses "1, 2,3" into ids. Blank entries are skipped.
func ParseIDList(raw string) ([]uint, error) {
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 32)
		if err != nil || id == 0 {
			return nil, models.NewValidationError("invalid id " + strconv.Quote(part))
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func parseOptionalID(raw, field string) (*uint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return nil, models.NewValidationError(field + " must be a positive id")
	}
	v := uint(id)
	return &v, nil
}

// Echo returns the accepted criteria for inclusion in response metadata.
func (c PostCriteria) Echo() map[string]any {
	out := map[string]any{
		"sort":     c.Sort,
		"page":     c.Page,
		"per_page": c.PerPage,
	}
	if c.Status != nil {
		out["status"] = *c.Status
	}
	if c.Text != "" {
		out["q"] = c.Text
	}
	if c.CategoryID != nil {
		out["category"] = *c.CategoryID
	}
	if len(c.TagIDs) > 0 {
		out["tags"] = c.TagIDs
	}
	if c.AuthorID != nil {
		out["author"] = *c.AuthorID
	}
	if c.From != nil {
		out["date_from"] = c.From.Format(dayLayout)
	}
	if c.To != nil {
		out["date_to"] = c.To.Format(dayLayout)
	}
	return out
}
