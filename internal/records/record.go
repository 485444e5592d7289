// Package records keeps the local publication history in a single key/value slot.
package records

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/starford/pinpress/internal/checksum"
)

// Record links a title/content snapshot to its latest on-network address.
type Record struct {
	ID        string
	Title     string
	Content   string
	CID       string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRecord holds the fields supplied by the caller on Create.
type NewRecord struct {
	Title   string
	Content string
	CID     string
	URL     string
}

// Patch lists fields to change on Update. A nil field keeps the current value.
type Patch struct {
	Title   *string
	Content *string
	CID     *string
	URL     *string
}

// String returns a pointer to s, for building a Patch.
func String(s string) *string { return &s }

func (p Patch) apply(r *Record) {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Content != nil {
		r.Content = *p.Content
	}
	if p.CID != nil {
		r.CID = *p.CID
	}
	if p.URL != nil {
		r.URL = *p.URL
	}
}

// ETag identifies this revision of the record for optimistic concurrency.
func (r *Record) ETag() string {
	return checksum.Short([]byte(r.ID + "\x00" + strconv.FormatInt(r.UpdatedAt.UnixMilli(), 10) + "\x00" + r.CID))
}

// recordJSON is the stored shape. Timestamps are Unix milliseconds.
type recordJSON struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CID       string `json:"cid"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// MarshalJSON encodes the record in the stored shape.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Content,
		CID:       r.CID,
		URL:       r.URL,
		CreatedAt: r.CreatedAt.UnixMilli(),
		UpdatedAt: r.UpdatedAt.UnixMilli(),
	})
}

// UnmarshalJSON decodes the stored shape.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record{
		ID:        raw.ID,
		Title:     raw.Title,
		Content:   raw.Content,
		CID:       raw.CID,
		URL:       raw.URL,
		CreatedAt: time.UnixMilli(raw.CreatedAt),
		UpdatedAt: time.UnixMilli(raw.UpdatedAt),
	}
	return nil
}
