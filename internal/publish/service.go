// Package publish composes rendering, upload and the record history into the
// publish pipeline used by every caller surface.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/starford/pinpress/internal/apperr"
	"github.com/starford/pinpress/internal/ipfs"
	"github.com/starford/pinpress/internal/parser"
	"github.com/starford/pinpress/internal/records"
)

// DefaultTitle is used when neither the caller nor the Markdown supplies one.
const DefaultTitle = "Untitled"

// Event kinds passed to a Notifier.
const (
	EventCreated = "record.created"
	EventUpdated = "record.updated"
	EventDeleted = "record.deleted"
	EventCleared = "record.cleared"
)

// Renderer produces the standalone HTML page.
type Renderer interface {
	Render(title, markdown string, createdAt time.Time) (string, error)
}

// Uploader adds content to the storage network.
type Uploader interface {
	Upload(ctx context.Context, content []byte, filename, mimeType string) (ipfs.UploadResult, error)
	ProbeLiveness(ctx context.Context) bool
	Settings(ctx context.Context) ipfs.Settings
}

// RecordStore is the publication history.
type RecordStore interface {
	List(ctx context.Context) ([]records.Record, error)
	Get(ctx context.Context, id string) (*records.Record, error)
	Create(ctx context.Context, in records.NewRecord) (*records.Record, error)
	UpdateIf(ctx context.Context, id, etag string, patch records.Patch) (*records.Record, error)
	Delete(ctx context.Context, id string) (bool, error)
	Clear(ctx context.Context) error
}

// Notifier receives an event after each successful history change.
type Notifier interface {
	PublishRecordEvent(kind, id string)
}

// Input is a new publication.
type Input struct {
	Title    string
	Markdown string
}

// Edit changes an existing publication. Nil fields keep the stored value.
type Edit struct {
	Title    *string
	Markdown *string
}

// NodeStatus describes the storage node as seen right now.
type NodeStatus struct {
	Online      bool   `json:"online"`
	APIEndpoint string `json:"apiEndpoint"`
	Gateway     string `json:"gateway"`
}

// Service runs render → upload → persist strictly in sequence. A failed
// render or upload returns before the history is touched.
type Service struct {
	renderer Renderer
	uploader Uploader
	store    RecordStore
	notifier Notifier
	logger   *slog.Logger
}

// NewService creates a publish service. notifier may be nil.
func NewService(renderer Renderer, uploader Uploader, store RecordStore, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		renderer: renderer,
		uploader: uploader,
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// Publish renders in, uploads the page and records the new publication.
func (s *Service) Publish(ctx context.Context, in Input) (*records.Record, error) {
	if strings.TrimSpace(in.Markdown) == "" {
		return nil, fmt.Errorf("%w: markdown is required", apperr.ErrInvalid)
	}
	title, body := resolveSource(in.Title, in.Markdown)

	addr, err := s.renderAndUpload(ctx, title, body, time.Time{})
	if err != nil {
		return nil, err
	}

	rec, err := s.store.Create(ctx, records.NewRecord{
		Title:   title,
		Content: in.Markdown,
		CID:     addr.CID,
		URL:     addr.URL,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("published",
		slog.String("id", rec.ID),
		slog.String("title", rec.Title),
		slog.String("cid", rec.CID))
	s.notify(EventCreated, rec.ID)
	return rec, nil
}

// Republish applies edit to the stored record, uploads the new page and
// points the record at the new address. ifMatch, when non-empty, must equal
// the record's current ETag.
func (s *Service) Republish(ctx context.Context, id string, edit Edit, ifMatch string) (*records.Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperr.ErrNotFound
	}
	if ifMatch != "" && ifMatch != rec.ETag() {
		return nil, apperr.ErrConflict
	}

	content := rec.Content
	if edit.Markdown != nil {
		content = *edit.Markdown
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: markdown is required", apperr.ErrInvalid)
	}
	requested := rec.Title
	if edit.Title != nil {
		requested = *edit.Title
	}
	title, body := resolveSource(requested, content)

	addr, err := s.renderAndUpload(ctx, title, body, rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	// The upload runs outside the store lock; the etag is checked again
	// when the record is written.
	updated, err := s.store.UpdateIf(ctx, id, ifMatch, records.Patch{
		Title:   records.String(title),
		Content: records.String(content),
		CID:     records.String(addr.CID),
		URL:     records.String(addr.URL),
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// Deleted between Get and Update.
		return nil, apperr.ErrNotFound
	}

	s.logger.Info("republished",
		slog.String("id", updated.ID),
		slog.String("previous_cid", rec.CID),
		slog.String("cid", updated.CID))
	s.notify(EventUpdated, updated.ID)
	return updated, nil
}

// Preview renders the page that Publish would upload.
func (s *Service) Preview(title, markdown string) (string, error) {
	title, body := resolveSource(title, markdown)
	return s.renderer.Render(title, body, time.Time{})
}

// RenderRecord renders a stored record as it was published.
func (s *Service) RenderRecord(ctx context.Context, id string) (string, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", apperr.ErrNotFound
	}
	title, body := resolveSource(rec.Title, rec.Content)
	return s.renderer.Render(title, body, rec.CreatedAt)
}

// NodeStatus probes the node and reports the endpoints in use.
func (s *Service) NodeStatus(ctx context.Context) NodeStatus {
	settings := s.Settings(ctx)
	return NodeStatus{
		Online:      s.uploader.ProbeLiveness(ctx),
		APIEndpoint: settings.APIEndpoint,
		Gateway:     settings.Gateway,
	}
}

// Settings returns the endpoints the next upload will use.
func (s *Service) Settings(ctx context.Context) ipfs.Settings {
	return s.uploader.Settings(ctx)
}

// List returns the history, newest first.
func (s *Service) List(ctx context.Context) ([]records.Record, error) {
	return s.store.List(ctx)
}

// Get returns one record or apperr.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*records.Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperr.ErrNotFound
	}
	return rec, nil
}

// Delete removes a record from the history. Published content stays on the network.
func (s *Service) Delete(ctx context.Context, id string) error {
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrNotFound
	}
	s.notify(EventDeleted, id)
	return nil
}

// Clear empties the history.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.notify(EventCleared, "")
	return nil
}

func (s *Service) renderAndUpload(ctx context.Context, title, body string, createdAt time.Time) (ipfs.UploadResult, error) {
	page, err := s.renderer.Render(title, body, createdAt)
	if err != nil {
		return ipfs.UploadResult{}, err
	}
	addr, err := s.uploader.Upload(ctx, []byte(page), Filename(title), ipfs.DefaultMIMEType)
	if err != nil {
		var ue *ipfs.UploadError
		if errors.As(err, &ue) {
			s.logger.Warn("upload failed",
				slog.String("title", title),
				slog.Int("status", ue.StatusCode),
				slog.String("error", err.Error()))
		}
		return ipfs.UploadResult{}, err
	}
	return addr, nil
}

func (s *Service) notify(kind, id string) {
	if s.notifier != nil {
		s.notifier.PublishRecordEvent(kind, id)
	}
}

// resolveSource picks the display title and the Markdown to render. Front
// matter is stripped from the rendered body; the stored content keeps it.
func resolveSource(title, markdown string) (string, string) {
	res := parser.Parse([]byte(markdown))
	title = strings.TrimSpace(title)
	if title == "" {
		title = res.Title
	}
	if title == "" {
		title = DefaultTitle
	}
	return title, res.Body
}

// Filename turns a title into the name of the uploaded file.
func Filename(title string) string {
	var b strings.Builder
	dash := false
	n := 0
	for _, r := range strings.ToLower(title) {
		if n >= 60 {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			n++
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
			n++
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		slug = "index"
	}
	return slug + ".html"
}
