package middleware

import (
	"compress/gzip"
	"net/http"
	"strings"
)

// tipos que já chegam comprimidos
var skipGzip = []string{"image/png", "application/pdf"}

type gzipWriter struct {
	http.ResponseWriter
	gz          *gzip.Writer
	wroteHeader bool
}

func (g *gzipWriter) WriteHeader(code int) {
	if g.wroteHeader {
		return
	}
	g.wroteHeader = true
	h := g.ResponseWriter.Header()
	if compressible(h.Get("Content-Type")) && code != http.StatusNoContent && code != http.StatusNotModified {
		h.Set("Content-Encoding", "gzip")
		h.Del("Content-Length")
		h.Add("Vary", "Accept-Encoding")
		g.gz = gzip.NewWriter(g.ResponseWriter)
	}
	g.ResponseWriter.WriteHeader(code)
}

func (g *gzipWriter) Write(p []byte) (int, error) {
	if !g.wroteHeader {
		g.WriteHeader(http.StatusOK)
	}
	if g.gz == nil {
		return g.ResponseWriter.Write(p)
	}
	return g.gz.Write(p)
}

func (g *gzipWriter) Close() error {
	if g.gz == nil {
		return nil
	}
	return g.gz.Close()
}

func compressible(contentType string) bool {
	for _, t := range skipGzip {
		if strings.HasPrefix(contentType, t) {
			return false
		}
	}
	return true
}

// Gzip comprime a resposta quando o cliente aceita gzip, exceto PNG e PDF.
// Handlers precisam definir Content-Type antes de escrever o corpo.
func Gzip(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gw := &gzipWriter{ResponseWriter: w}
		defer gw.Close()
		next.ServeHTTP(gw, r)
	})
}
