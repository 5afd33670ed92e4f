// Package site serves the landing page at the root path.
package site

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"net/http"
)

//go:embed static/**
var staticFS embed.FS

// ErrServe is reported when the embedded page cannot be read.
var ErrServe = errors.New("landing page serve failed")

// Register attaches the landing page to mux. Only "/" itself is served;
// other unmatched paths stay 404.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("GET /{$}", NewRootHandler())
}

// RootHandler serves the embedded index page.
type RootHandler struct {
	fs http.FileSystem
}

// NewRootHandler creates a new root handler.
func NewRootHandler() *RootHandler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return &RootHandler{fs: http.FS(staticFS)}
	}
	return &RootHandler{fs: http.FS(sub)}
}

// ServeHTTP implements http.Handler.
func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f, err := h.fs.Open("index.html")
	if err != nil {
		http.Error(w, ErrServe.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, ErrServe.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, "index.html", info.ModTime(), f)
}
