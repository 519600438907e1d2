package pdfrenderer

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestPreviewRegistryLifecycle(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	registry := NewPreviewRegistry("/api/preview/", 10*time.Minute)
	registry.now = func() time.Time { return clock }

	file := &Artifact{Bytes: []byte("png bytes"), Name: "resume.png", MimeType: MimeTypePNG}
	url, err := registry.MintURL(file)
	if err != nil {
		t.Fatalf("MintURL failed: %v", err)
	}
	id, ok := strings.CutPrefix(url, "/api/preview/")
	if !ok || id == "" {
		t.Fatalf("Unexpected preview URL %q", url)
	}

	data, mimeType, ok := registry.Get(id)
	if !ok {
		t.Fatal("Expected preview to be available")
	}
	if diff := cmp.Diff(file.Bytes, data); diff != "" {
		t.Errorf("Preview bytes mismatch (-want +got):\n%s", diff)
	}
	if mimeType != MimeTypePNG {
		t.Errorf("Expected %q, got %q", MimeTypePNG, mimeType)
	}

	clock = clock.Add(10 * time.Minute)
	if _, _, ok := registry.Get(id); ok {
		t.Error("Expected preview to expire")
	}
	if removed := registry.Sweep(); removed != 1 {
		t.Errorf("Expected sweep to remove 1 preview, removed %d", removed)
	}
	if registry.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", registry.Len())
	}
}

func TestPreviewRegistryRevoke(t *testing.T) {
	registry := NewPreviewRegistry("/api/preview", 0)
	url, err := registry.MintURL(&Artifact{Bytes: []byte{1}, MimeType: MimeTypePNG})
	if err != nil {
		t.Fatalf("MintURL failed: %v", err)
	}
	if removed := registry.Sweep(); removed != 0 {
		t.Errorf("Previews without a TTL should never expire, swept %d", removed)
	}
	if !registry.RevokeURL(url) {
		t.Fatal("Expected RevokeURL to find the preview")
	}
	if registry.RevokeURL(url) {
		t.Error("Second revoke should report unknown preview")
	}
	if registry.RevokeURL("https://elsewhere/" + url) {
		t.Error("Foreign URL should not be revoked")
	}
}

func TestMintersRejectEmptyArtifacts(t *testing.T) {
	minters := map[string]URLMinter{
		"data":     DataURLMinter{},
		"registry": NewPreviewRegistry("/p", time.Minute),
	}
	for name, minter := range minters {
		if _, err := minter.MintURL(nil); err == nil {
			t.Errorf("%s: expected error for nil artifact", name)
		}
		if _, err := minter.MintURL(&Artifact{}); err == nil {
			t.Errorf("%s: expected error for empty artifact", name)
		}
	}
}
