package esi

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fakePNG = "\x89PNG\r\n\x1a\nfake"

func TestImage_FetchesAndWritesDisk(t *testing.T) {
	dir := t.TempDir()
	transport := &stubTransport{steps: []roundTrip{{
		body:    fakePNG,
		headers: map[string]string{"Content-Type": "image/png"},
	}}}
	c := newTestClient(t, transport, func(o *Options) {
		o.ImageDir = dir
		o.ImageBaseURL = "https://images.test"
	})

	data, err := c.Image(context.Background(), "characters", 123, "portrait", 128, true)
	if err != nil {
		t.Fatalf("Image() error = %v", err)
	}
	if string(data) != fakePNG {
		t.Errorf("Image() data = %q", data)
	}

	req := transport.request(0)
	if got := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path; got != "https://images.test/characters/123/portrait" {
		t.Errorf("request URL = %q", got)
	}
	if got := req.URL.Query().Get("size"); got != "128" {
		t.Errorf("size param = %q, want 128", got)
	}
	if got := req.URL.Query().Get("tenant"); got != "tranquility" {
		t.Errorf("tenant param = %q, want tranquility", got)
	}

	cached, err := os.ReadFile(filepath.Join(dir, "characters", "123_portrait_128.png"))
	if err != nil {
		t.Fatalf("read cached image: %v", err)
	}
	if string(cached) != fakePNG {
		t.Errorf("cached image = %q", cached)
	}
}

func TestImage_ServedFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corporations", "98000001_logo_64.png")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(fakePNG), 0o600); err != nil {
		t.Fatal(err)
	}

	transport := &stubTransport{}
	c := newTestClient(t, transport, func(o *Options) {
		o.ImageDir = dir
	})

	data, err := c.Image(context.Background(), "corporations", 98000001, "logo", 64, true)
	if err != nil {
		t.Fatalf("Image() error = %v", err)
	}
	if string(data) != fakePNG {
		t.Errorf("Image() data = %q", data)
	}
	if transport.calls() != 0 {
		t.Errorf("transport calls = %d, want 0 for a disk hit", transport.calls())
	}
}

func TestImage_BypassesDiskWithoutCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "types", "587_icon_64.png")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("stale"), 0o600); err != nil {
		t.Fatal(err)
	}

	transport := &stubTransport{steps: []roundTrip{{
		body:    fakePNG,
		headers: map[string]string{"Content-Type": "image/png"},
	}}}
	c := newTestClient(t, transport, func(o *Options) {
		o.ImageDir = dir
	})

	data, err := c.Image(context.Background(), "types", 587, "icon", 64, false)
	if err != nil {
		t.Fatalf("Image() error = %v", err)
	}
	if string(data) != fakePNG {
		t.Errorf("Image() data = %q, want the network copy", data)
	}
	if transport.calls() != 1 {
		t.Errorf("transport calls = %d, want 1", transport.calls())
	}
	stale, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(stale) != "stale" {
		t.Error("uncached fetch overwrote the disk copy")
	}
}

func TestImage_EmptyResponse(t *testing.T) {
	transport := &stubTransport{steps: []roundTrip{{
		headers: map[string]string{"Content-Type": "image/png"},
	}}}
	c := newTestClient(t, transport, nil)

	_, err := c.Image(context.Background(), "characters", 123, "portrait", 128, false)
	if err == nil || !strings.Contains(err.Error(), "empty image") {
		t.Errorf("Image() error = %v, want empty image error", err)
	}
}

func TestImageWithFallback_PrefersThenClimbs(t *testing.T) {
	transport := &stubTransport{handler: func(r *http.Request) roundTrip {
		if r.URL.Query().Get("size") == "64" {
			return roundTrip{body: fakePNG, headers: map[string]string{"Content-Type": "image/png"}}
		}
		return roundTrip{status: http.StatusNotFound}
	}}
	c := newTestClient(t, transport, nil)

	data, size, err := c.ImageWithFallback(context.Background(), "types", 587, "icon", 128, false)
	if err != nil {
		t.Fatalf("ImageWithFallback() error = %v", err)
	}
	if size != 64 {
		t.Errorf("served size = %d, want 64", size)
	}
	if string(data) != fakePNG {
		t.Errorf("data = %q", data)
	}

	want := []string{"128", "256", "512", "1024", "64"}
	if transport.calls() != len(want) {
		t.Fatalf("transport calls = %d, want %d", transport.calls(), len(want))
	}
	for i, size := range want {
		if got := transport.request(i).URL.Query().Get("size"); got != size {
			t.Errorf("attempt %d size = %s, want %s", i, got, size)
		}
	}
}

func TestImageWithFallback_UnknownSizeAnchored(t *testing.T) {
	transport := &stubTransport{handler: func(r *http.Request) roundTrip {
		return roundTrip{status: http.StatusNotFound}
	}}
	c := newTestClient(t, transport, nil)

	_, _, err := c.ImageWithFallback(context.Background(), "alliances", 99000001, "logo", 200, false)
	if err == nil || !strings.Contains(err.Error(), "no image available") {
		t.Fatalf("ImageWithFallback() error = %v", err)
	}

	want := []string{"128", "256", "512", "1024", "200", "64", "32"}
	if transport.calls() != len(want) {
		t.Fatalf("transport calls = %d, want %d", transport.calls(), len(want))
	}
	for i, size := range want {
		if got := transport.request(i).URL.Query().Get("size"); got != size {
			t.Errorf("attempt %d size = %s, want %s", i, got, size)
		}
	}
}

func TestImageWithFallback_CancelledContext(t *testing.T) {
	c := newTestClient(t, &stubTransport{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.ImageWithFallback(ctx, "characters", 123, "portrait", 128, false)
	if err == nil {
		t.Error("ImageWithFallback() should stop on a cancelled context")
	}
}
