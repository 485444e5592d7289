// Package testutil provides shared test helpers: temporary stores and a fake IPFS node.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/pinpress/internal/checksum"
	"github.com/starford/pinpress/internal/ipfs"
	"github.com/starford/pinpress/internal/settings"
	"github.com/starford/pinpress/internal/storage"
)

// TestSQLite creates a temporary SQLite KV that is closed on cleanup.
func TestSQLite(t *testing.T) *storage.SQLite {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "pinpress-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestFS creates a temporary directory-backed KV.
func TestFS(t *testing.T) *storage.FS {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

// Upload is one file received by a FakeNode.
type Upload struct {
	Filename    string
	ContentType string
	Pin         string
	Body        []byte
}

// FakeNode is an httptest server speaking the subset of the IPFS RPC API the
// client uses. CIDs are derived from the uploaded bytes, so identical content
// gets an identical CID.
type FakeNode struct {
	Server *httptest.Server

	mu       sync.Mutex
	uploads  []Upload
	failWith int
	offline  bool
}

// NewFakeNode starts a FakeNode that is closed on cleanup.
func NewFakeNode(t *testing.T) *FakeNode {
	t.Helper()
	n := &FakeNode{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v0/add", n.add)
	mux.HandleFunc("/api/v0/id", n.id)
	n.Server = httptest.NewServer(mux)
	t.Cleanup(n.Server.Close)
	return n
}

// APIEndpoint returns the node's API base URL.
func (n *FakeNode) APIEndpoint() string {
	return n.Server.URL + "/api/v0"
}

// Gateway is the gateway prefix used by Settings.
const Gateway = "http://gateway.test/ipfs/"

// Settings returns a provider pointing at this node.
func (n *FakeNode) Settings() ipfs.SettingsProvider {
	return settings.Static{APIEndpoint: n.APIEndpoint(), Gateway: Gateway}
}

// Client returns an ipfs.Client bound to this node.
func (n *FakeNode) Client() *ipfs.Client {
	return ipfs.NewClient(n.Settings())
}

// FailWith makes every following add return status. Zero restores success.
func (n *FakeNode) FailWith(status int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failWith = status
}

// SetOffline makes /id answer 503.
func (n *FakeNode) SetOffline(offline bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = offline
}

// Uploads returns a copy of everything received so far.
func (n *FakeNode) Uploads() []Upload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Upload(nil), n.uploads...)
}

// CIDFor returns the CID the node assigns to body.
func CIDFor(body []byte) string {
	return "bafy" + checksum.Short(body)
}

func (n *FakeNode) add(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	fail := n.failWith
	n.mu.Unlock()
	if fail != 0 {
		http.Error(w, "fake node failure", fail)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	body, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.uploads = append(n.uploads, Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Pin:         r.URL.Query().Get("pin"),
		Body:        body,
	})
	n.mu.Unlock()

	cid := CIDFor(body)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, "{\"Name\":%q,\"Bytes\":%d}\n", header.Filename, len(body))
	fmt.Fprintf(w, "{\"Name\":%q,\"Hash\":%q,\"Size\":\"%d\"}\n", header.Filename, cid, len(body))
}

func (n *FakeNode) id(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	offline := n.offline
	n.mu.Unlock()
	if offline || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"ID":"12D3KooWFake","AgentVersion":"fake/0.1"}`)
}
