package gallery

import (
	"errors"
	"time"
)

// ErrUnavailable is returned when an entry has no resolved display URL.
var ErrUnavailable = errors.New("image unavailable")

// DisplayDateLayout formats the upload time shown alongside an image.
const DisplayDateLayout = "2 Jan 2006, 15:04"

// Detail is the enlarged view of one entry.
type Detail struct {
	ID          string    `json:"id"`
	DisplayURL  string    `json:"displayUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	DisplayDate string    `json:"displayDate"`
}

// Viewer opens entries for detailed display.
type Viewer struct {
	loc *time.Location
}

// NewViewer creates a Viewer formatting dates in loc (UTC when nil).
func NewViewer(loc *time.Location) *Viewer {
	if loc == nil {
		loc = time.UTC
	}
	return &Viewer{loc: loc}
}

// Open returns the detail view for e, or ErrUnavailable if e has no display URL.
func (v *Viewer) Open(e Entry) (*Detail, error) {
	if !e.Available || e.SignedURL == "" {
		return nil, ErrUnavailable
	}
	return &Detail{
		ID:          e.ID,
		DisplayURL:  e.SignedURL,
		CreatedAt:   e.CreatedAt,
		DisplayDate: e.CreatedAt.In(v.loc).Format(DisplayDateLayout),
	}, nil
}
