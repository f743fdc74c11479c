package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGet_ReadsBodyAndStatus(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("status = %d, want 418", resp.StatusCode)
	}
	if string(resp.Body) != "short and stout" {
		t.Errorf("body = %q", resp.Body)
	}
	if !strings.Contains(gotUA, "sourcewatch") {
		t.Errorf("User-Agent = %q, want sourcewatch UA", gotUA)
	}
}

func TestHead_CountsRedirectHops(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/c", http.StatusFound)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	c := NewClient(5 * time.Second)
	resp, err := c.Head(context.Background(), srv.URL+"/a")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if resp.RedirectHops != 2 {
		t.Errorf("RedirectHops = %d, want 2", resp.RedirectHops)
	}
	if !strings.HasSuffix(resp.FinalURL, "/c") {
		t.Errorf("FinalURL = %q, want .../c", resp.FinalURL)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestGet_TimeoutReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(50 * time.Millisecond)
	_, err := c.Get(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !IsTimeout(err) {
		t.Errorf("IsTimeout(%v) = false, want true", err)
	}
}

func TestSameURL_IgnoresTrailingSlash(t *testing.T) {
	if !SameURL("https://example.com/docs/", "https://example.com/docs") {
		t.Error("trailing slash should not count as a different URL")
	}
	if SameURL("https://example.com/docs", "https://example.com/other") {
		t.Error("different paths must not compare equal")
	}
}
