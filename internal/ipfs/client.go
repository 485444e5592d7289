// Package ipfs uploads content to an IPFS node through its HTTP RPC API.
package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// DefaultMIMEType is used when Upload is called with an empty MIME type.
const DefaultMIMEType = "text/html"

// maxErrorBody caps how much of a failed response is kept in the error message.
const maxErrorBody = 512

// UploadResult is the address of freshly added content.
type UploadResult struct {
	CID string `json:"cid"`
	URL string `json:"url"`
}

// addResponse is one NDJSON line from /add.
type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Client talks to a single IPFS node. Settings are resolved on every call;
// the Client itself caches nothing.
type Client struct {
	http     *http.Client
	settings SettingsProvider
	defaults Settings
	logger   *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces http.DefaultClient. No timeout is imposed by the
// Client; pass one here or cancel through the context.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithDefaults replaces the hard-coded fallback settings.
func WithDefaults(s Settings) ClientOption {
	return func(c *Client) {
		c.defaults = s.WithDefaults(DefaultSettings())
	}
}

// WithLogger sets the logger used for debug and warning output.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient returns a Client reading its endpoints from settings. A nil
// provider means the defaults are always used.
func NewClient(settings SettingsProvider, opts ...ClientOption) *Client {
	c := &Client{
		http:     http.DefaultClient,
		settings: settings,
		defaults: DefaultSettings(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settings resolves the active endpoints. A provider failure is logged and
// replaced by the defaults; it never reaches the caller.
func (c *Client) Settings(ctx context.Context) Settings {
	if c.settings == nil {
		return c.defaults
	}
	s, err := c.settings.Settings(ctx)
	if err != nil {
		c.logger.Warn("ipfs: settings unavailable, using defaults", slog.String("error", err.Error()))
		return c.defaults
	}
	return s.WithDefaults(c.defaults)
}

// Upload adds content to the node as a single pinned file and returns its CID
// and gateway URL. Any failure is an *UploadError.
func (c *Client) Upload(ctx context.Context, content []byte, filename, mimeType string) (UploadResult, error) {
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	s := c.Settings(ctx)

	body, contentType, err := multipartBody(content, filename, mimeType)
	if err != nil {
		return UploadResult{}, &UploadError{Op: "request", Message: "build multipart body", Err: err}
	}

	endpoint := apiURL(s.APIEndpoint, "add") + "?pin=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return UploadResult{}, &UploadError{Op: "request", Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return UploadResult{}, &UploadError{Op: "request", Message: "POST " + endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return UploadResult{}, &UploadError{Op: "decode", StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return UploadResult{}, &UploadError{
			Op:         "status",
			StatusCode: resp.StatusCode,
			Message:    "IPFS API error: " + snippet(raw),
		}
	}

	cid, err := lastHash(raw)
	if err != nil {
		return UploadResult{}, &UploadError{Op: "decode", StatusCode: resp.StatusCode, Message: "parse add response", Err: err}
	}

	c.logger.Debug("ipfs: added",
		slog.String("filename", filename),
		slog.String("cid", cid),
		slog.Int("bytes", len(content)))

	return UploadResult{CID: cid, URL: s.Gateway + cid}, nil
}

// ProbeLiveness reports whether the node answers /id with a 2xx status.
func (c *Client) ProbeLiveness(ctx context.Context) bool {
	s := c.Settings(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL(s.APIEndpoint, "id"), nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("ipfs: node unreachable", slog.String("endpoint", s.APIEndpoint), slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// lastHash extracts Hash from the final NDJSON line. Earlier lines are
// progress reports and are ignored even when they carry a Hash.
func lastHash(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("empty response body")
	}
	last := trimmed
	if i := bytes.LastIndexByte(trimmed, '\n'); i >= 0 {
		last = bytes.TrimSpace(trimmed[i+1:])
	}
	var line addResponse
	if err := json.Unmarshal(last, &line); err != nil {
		return "", fmt.Errorf("malformed last line %q: %w", snippet(last), err)
	}
	if line.Hash == "" {
		return "", fmt.Errorf("last line has no Hash field")
	}
	return line.Hash, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func multipartBody(content []byte, filename, mimeType string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", mimeType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func apiURL(base, op string) string {
	return strings.TrimRight(base, "/") + "/" + op
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
