package pdfrenderer

import (
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// URLMinter gives a freshly encoded artifact a client-addressable URL
type URLMinter interface {
	MintURL(file *Artifact) (string, error)
}

// DataURLMinter embeds the bytes in a data: URL; it needs no server
type DataURLMinter struct{}

// MintURL implements URLMinter
func (DataURLMinter) MintURL(file *Artifact) (string, error) {
	if file == nil || len(file.Bytes) == 0 {
		return "", errors.New("nothing to address")
	}
	return "data:" + file.MimeType + ";base64," + base64.StdEncoding.EncodeToString(file.Bytes), nil
}

// PreviewRegistry holds encoded images in memory behind short-lived URLs
// until they are revoked or expire.
type PreviewRegistry struct {
	mu       sync.RWMutex
	entries  map[string]previewEntry
	basePath string
	ttl      time.Duration
	now      func() time.Time
}

type previewEntry struct {
	data     []byte
	mimeType string
	expires  time.Time
}

// NewPreviewRegistry serves previews under basePath (e.g. "/api/preview")
func NewPreviewRegistry(basePath string, ttl time.Duration) *PreviewRegistry {
	return &PreviewRegistry{
		entries:  make(map[string]previewEntry),
		basePath: strings.TrimSuffix(basePath, "/"),
		ttl:      ttl,
		now:      time.Now,
	}
}

// MintURL implements URLMinter
func (p *PreviewRegistry) MintURL(file *Artifact) (string, error) {
	if file == nil || len(file.Bytes) == 0 {
		return "", errors.New("nothing to address")
	}
	id := ulid.Make().String()
	entry := previewEntry{data: file.Bytes, mimeType: file.MimeType}
	if p.ttl > 0 {
		entry.expires = p.now().Add(p.ttl)
	}

	p.mu.Lock()
	p.entries[id] = entry
	p.mu.Unlock()
	return p.basePath + "/" + id, nil
}

// Get returns the bytes and mime type behind a preview id
func (p *PreviewRegistry) Get(id string) ([]byte, string, bool) {
	p.mu.RLock()
	entry, ok := p.entries[id]
	p.mu.RUnlock()
	if !ok || p.expired(entry) {
		return nil, "", false
	}
	return entry.data, entry.mimeType, true
}

// Revoke releases a preview; it reports whether the id was known
func (p *PreviewRegistry) Revoke(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[id]
	delete(p.entries, id)
	return ok
}

// RevokeURL releases a preview by the URL MintURL returned
func (p *PreviewRegistry) RevokeURL(url string) bool {
	id, ok := strings.CutPrefix(url, p.basePath+"/")
	if !ok {
		return false
	}
	return p.Revoke(id)
}

// Sweep drops expired previews and returns how many were removed
func (p *PreviewRegistry) Sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for id, entry := range p.entries {
		if p.expired(entry) {
			delete(p.entries, id)
			removed++
		}
	}
	return removed
}

// Len is the number of live or not-yet-swept previews
func (p *PreviewRegistry) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

func (p *PreviewRegistry) expired(entry previewEntry) bool {
	return !entry.expires.IsZero() && !p.now().Before(entry.expires)
}
