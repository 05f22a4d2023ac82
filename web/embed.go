// Package web serves the browser chat client bundled into the binary.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
)

//go:embed all:dist
var distFS embed.FS

// Handler serves the chat page at / and any other bundled file by name.
// Unknown paths get a 404; the page has no client-side routes.
func Handler() http.Handler {
	files, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: dist missing from binary: " + err.Error())
	}
	page, err := fs.ReadFile(files, "index.html")
	if err != nil {
		panic("web: chat page missing from binary: " + err.Error())
	}
	static := http.FileServerFS(files)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		switch p := r.URL.Path; {
		case p == "/" || p == "/index.html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			if r.Method == http.MethodGet {
				_, _ = w.Write(page)
			}
		case path.Ext(p) != "":
			static.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
