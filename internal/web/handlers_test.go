package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetclean/internal/config"
	"github.com/JonMunkholm/sheetclean/internal/core"
	"github.com/JonMunkholm/sheetclean/internal/history"
	"github.com/JonMunkholm/sheetclean/internal/storage"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 5000
	cfg.Server.RequestTimeout = 10 * time.Second
	cfg.Upload.MaxFileSize = 1 << 20
	cfg.Upload.MaxMemory = 1 << 16
	cfg.CORS.AllowedOrigins = []string{"*"}
	cfg.CORS.MaxAge = time.Minute
	cfg.Transform.SheetName = core.DefaultSheetName
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	svc := core.NewService(store, history.NewMemory(10), core.Options{
		SheetName:     cfg.Transform.SheetName,
		KeepFalsy:     cfg.Transform.KeepFalsy,
		MaxConcurrent: 2,
		MaxWait:       time.Second,
	})
	s := NewServer(svc, cfg)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

// xlsx builds a workbook from rows, the first being the header.
func xlsx(t *testing.T, rows ...[]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// uploadRequest builds a multipart POST. A nil file omits the file part.
func uploadRequest(t *testing.T, path string, file []byte, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if file != nil {
		part, err := mw.CreateFormFile("file", "contacts.xlsx")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

var contactRows = [][]any{
	{"Name", "Phone 1 - Value", "City"},
	{"Asha", "+91-9876543210:::9876543210", "Pune"},
	{"Ravi", "123", "Delhi"},
	{"Asha K", "+91 98765 43210", "Mumbai"},
}

func TestHandleHeaders(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := serve(s, uploadRequest(t, "/headers", xlsx(t, contactRows...), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp HeadersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Name", "Phone 1 - Value", "City"}, resp.Headers)
}

func TestHandleHeaders_Errors(t *testing.T) {
	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing file part",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "/headers", nil, nil) },
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE004",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/headers", strings.NewReader("{}"))
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE004",
		},
		{
			name: "not a workbook",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/headers", []byte("name,phone\nasha,123\n"), nil)
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE002",
		},
		{
			name:     "empty sheet",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "/headers", xlsx(t), nil) },
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE003",
		},
	}

	s := newTestServer(t, testConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, tt.req(t))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, decodeError(t, rec).Code)
		})
	}
}

func TestHandleProcess_ThenDownloadOnce(t *testing.T) {
	cfg := testConfig()
	cfg.Server.PublicBaseURL = "https://files.example.com/"
	s := newTestServer(t, cfg)

	rec := serve(s, uploadRequest(t, "/process", xlsx(t, contactRows...), map[string]string{
		"fields": `["Name","City"]`,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ProcessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Regexp(t, `^https://files\.example\.com/download/processed_[0-9a-f-]+\.xlsx$`, resp.DownloadLink)
	assert.Equal(t, core.Stats{InputRows: 3, OutputRows: 2, DuplicateRows: 1}, resp.Stats)

	link, err := url.Parse(resp.DownloadLink)
	require.NoError(t, err)

	rec = serve(s, httptest.NewRequest(http.MethodGet, link.Path, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(core.DefaultSheetName)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Name", "City", core.PhoneField},
		{"Asha K", "Mumbai", "9876543210"},
		{"Ravi", "Delhi", "123"},
	}, rows)

	rec = serve(s, httptest.NewRequest(http.MethodGet, link.Path, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "FILE006", decodeError(t, rec).Code)
}

func TestHandleProcess_LinkFromRequestHost(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := uploadRequest(t, "/process", xlsx(t, contactRows...), map[string]string{"fields": `[]`})
	req.Host = "localhost:5000"
	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ProcessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.DownloadLink, "http://localhost:5000/download/processed_"), resp.DownloadLink)
}

func TestHandleProcess_InvalidSelection(t *testing.T) {
	s := newTestServer(t, testConfig())

	for _, fields := range []map[string]string{
		nil,
		{"fields": "Name,City"},
		{"fields": `{"Name":true}`},
	} {
		rec := serve(s, uploadRequest(t, "/process", xlsx(t, contactRows...), fields))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "fields=%v", fields)
		assert.Equal(t, "SEL001", decodeError(t, rec).Code)
	}
}

func TestHandleProcess_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 256
	s := newTestServer(t, cfg)

	rec := serve(s, uploadRequest(t, "/process", bytes.Repeat([]byte("x"), 4096), map[string]string{"fields": `[]`}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "FILE001", decodeError(t, rec).Code)
}

func TestHandleDownload_UnknownOrInvalidName(t *testing.T) {
	s := newTestServer(t, testConfig())

	for _, path := range []string{"/download/processed_missing.xlsx", "/download/.hidden.xlsx"} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestHandleHistory(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())

	for i := 0; i < 3; i++ {
		req := uploadRequest(t, "/process", xlsx(t, contactRows...), map[string]string{"fields": `["Name"]`})
		req.Header.Set("User-Agent", fmt.Sprintf("agent-%d", i))
		require.Equal(t, http.StatusOK, serve(s, req).Code)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/history?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Runs, 2)
	assert.Equal(t, "agent-2", resp.Runs[0].UserAgent)
	assert.Equal(t, "contacts.xlsx", resp.Runs[0].Source)
	assert.Equal(t, 3, resp.Runs[0].InputRows)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Jobs.MaxConcurrent)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestShutdownBeforeStart(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	s := newTestServer(t, cfg)

	require.NoError(t, s.Shutdown(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after an earlier Shutdown()")
	}
}

func TestStartThenShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	s := newTestServer(t, cfg)

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	require.NoError(t, s.Shutdown(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Shutdown()")
	}
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret-key"}
	s := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(s, httptest.NewRequest(http.MethodGet, "/api/history", nil)).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, http.StatusForbidden, serve(s, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("X-API-Key", "secret-key")
	assert.Equal(t, http.StatusOK, serve(s, req).Code)
}

func TestRateLimitEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Rate.Enabled = true
	cfg.Rate.RequestsPerMinute = 2
	s := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	}
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/process", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := serve(s, req)
	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", core.ErrFileTooLarge), http.StatusRequestEntityTooLarge},
		{fmt.Errorf("x: %w", core.ErrNoFile), http.StatusBadRequest},
		{fmt.Errorf("x: %w", core.ErrParse), http.StatusBadRequest},
		{fmt.Errorf("x: %w", core.ErrNoHeader), http.StatusBadRequest},
		{fmt.Errorf("x: %w", core.ErrInvalidSelection), http.StatusBadRequest},
		{fmt.Errorf("x: %w", core.ErrFileNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", storage.ErrInvalidName), http.StatusNotFound},
		{core.ErrTooManyJobs, http.StatusServiceUnavailable},
		{core.ErrSerialization, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
