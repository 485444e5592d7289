package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pinpress/internal/publish"
	"github.com/starford/pinpress/internal/settings"
	"github.com/starford/pinpress/internal/sse"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc      *publish.Service
	settings *settings.KV
	broker   *sse.Broker
}

// NewHandler creates a new Handler. settingsStore and broker may be nil.
func NewHandler(svc *publish.Service, settingsStore *settings.KV, broker *sse.Broker) *Handler {
	return &Handler{svc: svc, settings: settingsStore, broker: broker}
}

// ifMatch reads the If-Match header, accepting quoted and weak ETags.
func ifMatch(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("If-Match"))
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}

func setETag(w http.ResponseWriter, etag string) {
	w.Header().Set("ETag", `"`+etag+`"`)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListRecords handles GET /api/records.
//
//	@Summary		List publications, newest first
//	@Tags			records
//	@Produce		json
//	@Success		200	{object}	RecordListResponse
//	@Security		BearerAuth
//	@Router			/records [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, "list records", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordList(list))
}

// GetRecord handles GET /api/records/{id}.
//
//	@Summary		Get a single publication
//	@Tags			records
//	@Produce		json
//	@Param			id	path		string	true	"Record id"
//	@Success		200	{object}	RecordResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get record", err)
		return
	}
	setETag(w, rec.ETag())
	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

// PublishRecord handles POST /api/records.
//
//	@Summary		Render, upload and record a Markdown page
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PublishRequest	true	"Page to publish"
//	@Success		201		{object}	RecordResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records [post]
func (h *Handler) PublishRecord(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := h.svc.Publish(r.Context(), publish.Input{Title: req.Title, Markdown: req.Markdown})
	if err != nil {
		writeError(w, "publish", err)
		return
	}
	setETag(w, rec.ETag())
	writeJSON(w, http.StatusCreated, toRecordResponse(rec))
}

// RepublishRecord handles PUT /api/records/{id}.
//
//	@Summary		Edit and re-upload a publication with optimistic concurrency
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"Record id"
//	@Param			If-Match	header		string				false	"ETag from a previous read"
//	@Param			body		body		RepublishRequest	true	"Fields to change"
//	@Success		200			{object}	RecordResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Failure		502			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [put]
func (h *Handler) RepublishRecord(w http.ResponseWriter, r *http.Request) {
	var req RepublishRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := h.svc.Republish(r.Context(), id, publish.Edit{Title: req.Title, Markdown: req.Markdown}, ifMatch(r))
	if err != nil {
		writeError(w, "republish", err)
		return
	}
	setETag(w, rec.ETag())
	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

// DeleteRecord handles DELETE /api/records/{id}.
//
//	@Summary		Remove a publication from the history
//	@Tags			records
//	@Param			id	path	string	true	"Record id"
//	@Success		204	"Record deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [delete]
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearRecords handles DELETE /api/records.
//
//	@Summary		Empty the publication history
//	@Tags			records
//	@Success		204	"History cleared"
//	@Security		BearerAuth
//	@Router			/records [delete]
func (h *Handler) ClearRecords(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Clear(r.Context()); err != nil {
		writeError(w, "clear records", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordHTML handles GET /api/records/{id}/html.
//
//	@Summary		Re-render a stored publication
//	@Tags			records
//	@Produce		html
//	@Param			id	path	string	true	"Record id"
//	@Success		200	{string}	string	"HTML page"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id}/html [get]
func (h *Handler) RecordHTML(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.RenderRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "render record", err)
		return
	}
	writeHTML(w, page)
}

// Preview handles POST /api/preview.
//
//	@Summary		Render Markdown without uploading
//	@Tags			render
//	@Accept			json
//	@Produce		html
//	@Param			body	body	PreviewRequest	true	"Page to render"
//	@Success		200		{string}	string	"HTML page"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/preview [post]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	page, err := h.svc.Preview(req.Title, req.Markdown)
	if err != nil {
		writeError(w, "preview", err)
		return
	}
	writeHTML(w, page)
}

// Node handles GET /api/node.
//
//	@Summary		Probe the storage node
//	@Tags			node
//	@Produce		json
//	@Success		200	{object}	NodeStatus
//	@Security		BearerAuth
//	@Router			/node [get]
func (h *Handler) Node(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.NodeStatus(r.Context()))
}

// GetSettings handles GET /api/settings.
//
//	@Summary		Show stored and effective endpoint settings
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	SettingsResponse
//	@Security		BearerAuth
//	@Router			/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	resp := SettingsResponse{
		Effective: h.svc.Settings(r.Context()),
		Writable:  h.settings != nil,
	}
	if h.settings != nil {
		stored, err := h.settings.Settings(r.Context())
		if err != nil {
			writeError(w, "read settings", err)
			return
		}
		resp.Stored = stored
	}
	writeJSON(w, http.StatusOK, resp)
}

// PutSettings handles PUT /api/settings.
//
//	@Summary		Replace the stored endpoint settings
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SettingsDTO	true	"Endpoints; blank fields use defaults"
//	@Success		200		{object}	SettingsResponse
//	@Failure		400		{object}	errResponse
//	@Failure		405		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings [put]
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	if h.settings == nil {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("settings are read from a file"))
		return
	}
	var req SettingsDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.settings.Save(r.Context(), req); err != nil {
		writeError(w, "save settings", err)
		return
	}
	slog.Info("settings saved",
		slog.String("api_endpoint", req.APIEndpoint),
		slog.String("gateway", req.Gateway))
	if h.broker != nil {
		h.broker.PublishSettingsChanged(settings.Key)
	}
	h.GetSettings(w, r)
}
