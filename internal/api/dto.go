package api

import (
	"github.com/starford/pinpress/internal/ipfs"
	"github.com/starford/pinpress/internal/publish"
	"github.com/starford/pinpress/internal/records"
)

// PublishRequest is the request body for publishing a new page.
type PublishRequest struct {
	Title    string `json:"title,omitempty" example:"Hello"`
	Markdown string `json:"markdown" example:"# Hello\nWorld" validate:"required"`
}

// RepublishRequest is the request body for editing a publication. Omitted
// fields keep their stored value.
type RepublishRequest struct {
	Title    *string `json:"title,omitempty" example:"Hello again"`
	Markdown *string `json:"markdown,omitempty" example:"# Hello\nAgain"`
}

// PreviewRequest is the request body for rendering without upload.
type PreviewRequest struct {
	Title    string `json:"title,omitempty" example:"Hello"`
	Markdown string `json:"markdown" example:"**bold**"`
}

// RecordResponse is one publication. Timestamps are Unix milliseconds.
type RecordResponse struct {
	ID        string `json:"id" example:"0190c1e4-7a1b-7c3d-9e2f-4a5b6c7d8e9f" validate:"required"`
	Title     string `json:"title" example:"Hello" validate:"required"`
	Content   string `json:"content" example:"# Hello" validate:"required"`
	CID       string `json:"cid" example:"bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi" validate:"required"`
	URL       string `json:"url" example:"https://ipfs.io/ipfs/bafybeig..." validate:"required"`
	CreatedAt int64  `json:"createdAt" example:"1700000000123" validate:"required"`
	UpdatedAt int64  `json:"updatedAt" example:"1700000000123" validate:"required"`
	ETag      string `json:"etag" example:"3f2a9c0d41b7e8aa" validate:"required"`
}

// RecordListResponse wraps the publication history, newest first.
type RecordListResponse struct {
	Records []RecordResponse `json:"records" validate:"required"`
	Total   int              `json:"total" example:"3" validate:"required"`
}

// NodeStatus is the storage node status (aliased from the domain layer).
type NodeStatus = publish.NodeStatus

// SettingsDTO is the endpoint configuration (aliased from the domain layer).
type SettingsDTO = ipfs.Settings

// SettingsResponse shows what the user saved next to what uploads will use
// after defaults are applied.
type SettingsResponse struct {
	Stored    SettingsDTO `json:"stored"`
	Effective SettingsDTO `json:"effective" validate:"required"`
	Writable  bool        `json:"writable" example:"true"`
}

func toRecordResponse(r *records.Record) RecordResponse {
	return RecordResponse{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Content,
		CID:       r.CID,
		URL:       r.URL,
		CreatedAt: r.CreatedAt.UnixMilli(),
		UpdatedAt: r.UpdatedAt.UnixMilli(),
		ETag:      r.ETag(),
	}
}

func toRecordList(list []records.Record) RecordListResponse {
	out := make([]RecordResponse, 0, len(list))
	for i := range list {
		out = append(out, toRecordResponse(&list[i]))
	}
	return RecordListResponse{Records: out, Total: len(out)}
}
