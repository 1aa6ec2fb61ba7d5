// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/unobtrude/internal/archive"
	"github.com/pdiddy/unobtrude/internal/journal"
	"github.com/pdiddy/unobtrude/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const scratch = "/scratch"

type testServer struct {
	*Server
	fs      afero.Fs
	journal *journal.Store
}

func newTestServer(t *testing.T, mutate ...func(*Options)) *testServer {
	t.Helper()
	cfg := types.DefaultConfig()
	cfg.Server.ScratchDir = scratch
	cfg.Server.PublicDir = t.TempDir()

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	opts := Options{
		Server:   cfg.Server,
		Rewrite:  cfg.Rewrite,
		Fs:       afero.NewMemMapFs(),
		Journal:  j,
		Registry: prometheus.NewRegistry(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	s, err := New(opts)
	require.NoError(t, err)
	return &testServer{Server: s, fs: opts.Fs, journal: j}
}

// uploadBody builds a multipart body with one files[] part per name/content
// pair.
func uploadBody(t *testing.T, kv ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for i := 0; i+1 < len(kv); i += 2 {
		fw, err := mw.CreateFormFile(UploadField, kv[i])
		require.NoError(t, err)
		_, err = io.WriteString(fw, kv[i+1])
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func uploadRequest(t *testing.T, kv ...string) *http.Request {
	t.Helper()
	body, contentType := uploadBody(t, kv...)
	req := httptest.NewRequest(http.MethodPost, "/upload-folder", body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func (ts *testServer) upload(t *testing.T, kv ...string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, uploadRequest(t, kv...))
	return w
}

func (ts *testServer) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := afero.ReadDir(ts.fs, scratch)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries, "workspaces must be removed after each request")
}

func TestUpload(t *testing.T) {
	ts := newTestServer(t)

	w := ts.upload(t,
		"a.jsp", `<div onclick="go('x', 2)">x</div>`,
		"b.txt", "left out",
		"views/c.jsp", `<img onload="ready()">`,
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="modified_folder.zip"`, w.Header().Get("Content-Disposition"))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	entries, err := archive.Read(w.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.jsp", entries[0].Path)
	assert.Equal(t, "views/c.jsp", entries[1].Path)

	a := string(entries[0].Content)
	assert.NotContains(t, a, "onclick")
	assert.Contains(t, a, `data-param1="x"`)
	assert.Contains(t, a, `data-param2="2"`)
	assert.Contains(t, a, "go(key1, key2);")
	assert.Contains(t, a, `<script nonce="${nonce}" type="text/javascript">`)
	assert.Contains(t, string(entries[1].Content), "ready();")

	ts.assertScratchEmpty(t)

	runs, err := ts.journal.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.RunConverted, runs[0].Status)
	assert.Equal(t, types.SourceHTTP, runs[0].Source)
	assert.Equal(t, 3, runs[0].Uploaded)
	assert.Equal(t, 2, runs[0].Converted)
	assert.Equal(t, 1, runs[0].Skipped)
	assert.Equal(t, w.Header().Get(RequestIDHeader), runs[0].ID)
	assert.Contains(t, runs[0].ContentTypes, "text/html")
	sniffed := 0
	for _, n := range runs[0].ContentTypes {
		sniffed += n
	}
	assert.Equal(t, 3, sniffed)
}

func TestUpload_NoEligibleFiles(t *testing.T) {
	ts := newTestServer(t)

	w := ts.upload(t, "b.txt", "anything")
	require.Equal(t, http.StatusOK, w.Code)

	entries, err := archive.Read(w.Body.Bytes())
	require.NoError(t, err)
	assert.Empty(t, entries)
	ts.assertScratchEmpty(t)
}

func TestUpload_NoFiles(t *testing.T) {
	otherField := func(t *testing.T) (io.Reader, string) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("note", "hello"))
		require.NoError(t, mw.Close())
		return &buf, mw.FormDataContentType()
	}

	tests := []struct {
		name string
		body func(t *testing.T) (io.Reader, string)
	}{
		{"json body", func(*testing.T) (io.Reader, string) {
			return strings.NewReader(`{"files":[]}`), "application/json"
		}},
		{"no content type", func(*testing.T) (io.Reader, string) {
			return strings.NewReader("raw"), ""
		}},
		{"multipart without files", otherField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			body, contentType := tt.body(t)
			req := httptest.NewRequest(http.MethodPost, "/upload-folder", body)
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}
			w := httptest.NewRecorder()
			ts.Handler().ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "No files uploaded.", w.Body.String())

			runs, err := ts.journal.Recent(context.Background(), 1)
			require.NoError(t, err)
			require.Len(t, runs, 1)
			assert.Equal(t, types.RunRejected, runs[0].Status)
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.Server.MaxUploadBytes = 64 })

	w := ts.upload(t, "a.jsp", strings.Repeat("x", 1024))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Error uploading files.", w.Body.String())
	ts.assertScratchEmpty(t)
}

func TestUpload_InvalidName(t *testing.T) {
	ts := newTestServer(t)

	w := ts.upload(t, "..", "escape")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Error processing files.", w.Body.String())
	ts.assertScratchEmpty(t)

	runs, err := ts.journal.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.RunFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestUpload_ConcurrentRequestsAreIsolated(t *testing.T) {
	ts := newTestServer(t)

	const n = 8
	reqs := make([]*http.Request, n)
	for i := range reqs {
		reqs[i] = uploadRequest(t, "same.jsp", fmt.Sprintf("<p>request-%d</p>", i))
	}

	var wg sync.WaitGroup
	recorders := make([]*httptest.ResponseRecorder, n)
	for i := range reqs {
		recorders[i] = httptest.NewRecorder()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ts.Handler().ServeHTTP(recorders[i], reqs[i])
		}(i)
	}
	wg.Wait()

	for i, w := range recorders {
		require.Equal(t, http.StatusOK, w.Code)
		entries, err := archive.Read(w.Body.Bytes())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		body := string(entries[0].Content)
		assert.Contains(t, body, fmt.Sprintf("request-%d", i))
		for j := 0; j < n; j++ {
			if j != i {
				assert.NotContains(t, body, fmt.Sprintf("request-%d<", j))
			}
		}
	}
	ts.assertScratchEmpty(t)
}

func TestUpload_ArchiveFailure(t *testing.T) {
	errZip := errors.New("disk full")

	t.Run("before any bytes", func(t *testing.T) {
		ts := newTestServer(t)
		ts.writeArchive = func(io.Writer, []types.ArchiveEntry) error { return errZip }

		w := ts.upload(t, "a.jsp", "<p>x</p>")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Error creating ZIP file.", w.Body.String())
		assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Empty(t, w.Header().Get("Content-Disposition"))
		ts.assertScratchEmpty(t)

		runs, err := ts.journal.Recent(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, types.RunFailed, runs[0].Status)
		assert.Equal(t, "disk full", runs[0].Error)
	})

	t.Run("after bytes were sent", func(t *testing.T) {
		ts := newTestServer(t)
		ts.writeArchive = func(w io.Writer, _ []types.ArchiveEntry) error {
			if _, err := w.Write([]byte("PK\x03\x04")); err != nil {
				return err
			}
			return errZip
		}

		req := uploadRequest(t, "a.jsp", "<p>x</p>")
		w := httptest.NewRecorder()
		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			ts.Handler().ServeHTTP(w, req)
		})
		assert.Equal(t, http.StatusOK, w.Code, "status line already sent")
		assert.Equal(t, "PK\x03\x04", w.Body.String())
		ts.assertScratchEmpty(t)

		runs, err := ts.journal.Recent(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, types.RunFailed, runs[0].Status)
		assert.Equal(t, "disk full", runs[0].Error)
	})
}

func TestUpload_CustomArchiveName(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.Server.ArchiveName = "converted.zip" })

	w := ts.upload(t, "a.jsp", "<p>x</p>")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="converted.zip"`, w.Header().Get("Content-Disposition"))
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.upload(t, "a.jsp", `<a onclick="f()">x</a>`).Code)

	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	out := w.Body.String()
	assert.Contains(t, out, `unobtrude_batches_total{status="converted"} 1`)
	assert.Contains(t, out, `unobtrude_files_total{outcome="converted"} 1`)
	assert.Contains(t, out, `unobtrude_handlers_rewritten_total{event="onclick"} 1`)
}

func TestStatic(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(ts.cfg.PublicDir, "index.html"), []byte("<h1>upload</h1>"), 0o644))

	tests := []struct {
		method string
		path   string
		code   int
		body   string
	}{
		{http.MethodGet, "/", http.StatusOK, "<h1>upload</h1>"},
		{http.MethodGet, "/index.html", http.StatusMovedPermanently, ""},
		{http.MethodGet, "/missing.css", http.StatusNotFound, ""},
		{http.MethodPost, "/elsewhere", http.StatusNotFound, "Not found."},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			ts.Handler().ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.Server.EnableCORS = true })

	req := httptest.NewRequest(http.MethodOptions, "/upload-folder", nil)
	req.Header.Set("Origin", "http://example.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNew_UnknownNonceMode(t *testing.T) {
	_, err := New(Options{Rewrite: types.RewriteConfig{Nonce: "sometimes"}})
	assert.Error(t, err)
}

func TestServe_Shutdown(t *testing.T) {
	ts := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
