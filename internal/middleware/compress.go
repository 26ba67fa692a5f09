package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

var (
	gzipPool = sync.Pool{New: func() any { return gzip.NewWriter(io.Discard) }}
	brPool   = sync.Pool{New: func() any { return brotli.NewWriterLevel(io.Discard, brotli.DefaultCompression) }}
)

// compressWriter picks the encoding on the first write so handlers that
// never write (or only set a status) leave the response untouched.
type compressWriter struct {
	http.ResponseWriter
	encoding string
	enc      io.WriteCloser
	started  bool
}

func (w *compressWriter) WriteHeader(status int) {
	if !w.started {
		w.start(status)
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *compressWriter) Write(b []byte) (int, error) {
	if !w.started {
		w.start(http.StatusOK)
		w.ResponseWriter.WriteHeader(http.StatusOK)
	}
	if w.enc == nil {
		return w.ResponseWriter.Write(b)
	}
	return w.enc.Write(b)
}

func (w *compressWriter) start(status int) {
	w.started = true
	if status == http.StatusNoContent || status == http.StatusNotModified || w.Header().Get("Content-Encoding") != "" {
		return
	}
	w.Header().Set("Content-Encoding", w.encoding)
	w.Header().Del("Content-Length")
	switch w.encoding {
	case "br":
		bw := brPool.Get().(*brotli.Writer)
		bw.Reset(w.ResponseWriter)
		w.enc = bw
	case "gzip":
		gz := gzipPool.Get().(*gzip.Writer)
		gz.Reset(w.ResponseWriter)
		w.enc = gz
	}
}

func (w *compressWriter) finish() {
	if w.enc == nil {
		return
	}
	_ = w.enc.Close()
	switch enc := w.enc.(type) {
	case *brotli.Writer:
		brPool.Put(enc)
	case *gzip.Writer:
		gzipPool.Put(enc)
	}
	w.enc = nil
}

// Compress encodes responses with brotli or gzip, whichever the client
// prefers (brotli wins ties). Websocket upgrades pass through untouched.
func Compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")

		encoding := negotiateEncoding(r.Header.Get("Accept-Encoding"))
		if encoding == "" || strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		cw := &compressWriter{ResponseWriter: w, encoding: encoding}
		defer cw.finish()
		next.ServeHTTP(cw, r)
	})
}

func negotiateEncoding(accept string) string {
	var gz bool
	for _, part := range strings.Split(accept, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.ReplaceAll(strings.TrimSpace(params), " ", "") == "q=0" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "br":
			return "br"
		case "gzip":
			gz = true
		}
	}
	if gz {
		return "gzip"
	}
	return ""
}
