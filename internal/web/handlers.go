package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheetclean/internal/core"
	"github.com/JonMunkholm/sheetclean/internal/history"
	"github.com/JonMunkholm/sheetclean/internal/logging"
	"github.com/JonMunkholm/sheetclean/internal/storage"
)

// xlsxContentType is the media type of generated workbooks.
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// HeadersResponse is returned by POST /headers.
type HeadersResponse struct {
	Headers []string `json:"headers"`
}

// ProcessResponse is returned by POST /process.
type ProcessResponse struct {
	DownloadLink string     `json:"downloadLink"`
	Stats        core.Stats `json:"stats"`
}

// HistoryResponse is returned by GET /api/history.
type HistoryResponse struct {
	Runs []history.Run `json:"runs"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status string                `json:"status"`
	Jobs   core.JobLimiterStatus `json:"jobs"`
}

// handleHealth reports liveness and job slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Jobs:   s.service.LimiterStatus(),
	})
}

// handleHeaders returns the header row of the uploaded spreadsheet.
func (s *Server) handleHeaders(w http.ResponseWriter, r *http.Request) {
	file, _, cleanup, err := s.openUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer cleanup()

	headers, err := s.service.ExtractHeaders(r.Context(), file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, HeadersResponse{Headers: headers})
}

// handleProcess transforms the upload and returns a one-time download link.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	file, header, cleanup, err := s.openUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer cleanup()

	sel, err := core.ParseSelection(r.FormValue("fields"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := withRequestMetadata(r.Context(), r)
	res, err := s.service.Process(ctx, core.ProcessRequest{
		File:      file,
		FileName:  header.Filename,
		Selection: sel,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ProcessResponse{
		DownloadLink: s.downloadLink(r, res.Output),
		Stats:        res.Stats,
	})
}

// handleDownload streams a generated workbook once and deletes it.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")

	var started bool
	err := s.service.Download(r.Context(), name, func(c *storage.Claim) error {
		started = true

		h := w.Header()
		h.Set("Content-Type", xlsxContentType)
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
		h.Set("Content-Length", strconv.FormatInt(c.Size, 10))
		h.Set("Last-Modified", c.ModTime.UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)

		_, err := io.Copy(w, c.Content)
		return err
	})
	if err == nil {
		return
	}
	if started {
		logging.FromContext(r.Context()).Warn("download interrupted", "file", name, "error", err)
		return
	}
	s.respondError(w, r, err)
}

// handleHistory lists recent runs. ?limit=N bounds the result.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", history.DefaultLimit)

	runs, err := s.service.RecentRuns(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{Runs: runs})
}

// openUpload parses the multipart body and returns the "file" part. The
// returned cleanup removes any temp files the parse created and must be
// called once the file is no longer needed.
func (s *Server) openUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if err := r.ParseMultipartForm(s.cfg.Upload.MaxMemory); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig), errors.Is(err, multipart.ErrMessageTooLarge):
			return nil, nil, nil, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, s.cfg.Upload.MaxFileSize)
		default:
			return nil, nil, nil, fmt.Errorf("%w: %v", core.ErrNoFile, err)
		}
	}

	form := r.MultipartForm
	removeForm := func() {
		if err := form.RemoveAll(); err != nil {
			logging.FromContext(r.Context()).Warn("remove upload temp files", "error", err)
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		removeForm()
		return nil, nil, nil, fmt.Errorf("%w: %v", core.ErrNoFile, err)
	}

	cleanup := func() {
		file.Close()
		removeForm()
	}
	return file, header, cleanup, nil
}

// downloadLink builds the absolute link for name. PUBLIC_BASE_URL wins;
// otherwise the request's own host is used.
func (s *Server) downloadLink(r *http.Request, name string) string {
	base := strings.TrimRight(s.cfg.Server.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/download/" + url.PathEscape(name)
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
