package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetclean/internal/history"
	"github.com/JonMunkholm/sheetclean/internal/logging"
	"github.com/JonMunkholm/sheetclean/internal/sheet"
	"github.com/JonMunkholm/sheetclean/internal/storage"
)

// DefaultSheetName names the single sheet of every generated workbook.
const DefaultSheetName = "FilteredData"

// OutputExt is the extension of generated files.
const OutputExt = ".xlsx"

// Options configures a Service.
type Options struct {
	// SheetName of generated workbooks (default: FilteredData).
	SheetName string

	// KeepFalsy is passed through to Transform.
	KeepFalsy bool

	// MaxConcurrent bounds parallel spreadsheet jobs.
	MaxConcurrent int

	// MaxWait is how long a job waits for a free slot.
	MaxWait time.Duration
}

// Service extracts headers from uploads, transforms them into deduplicated
// workbooks and hands each result out exactly once.
type Service struct {
	store    storage.Store
	recorder history.Recorder
	limiter  *JobLimiter
	opts     Options
}

// NewService creates a Service. A nil recorder keeps history in memory.
func NewService(store storage.Store, recorder history.Recorder, opts Options) *Service {
	if recorder == nil {
		recorder = history.NewMemory(0)
	}
	if opts.SheetName == "" {
		opts.SheetName = DefaultSheetName
	}
	return &Service{
		store:    store,
		recorder: recorder,
		limiter:  NewJobLimiter(opts.MaxConcurrent, opts.MaxWait),
		opts:     opts,
	}
}

// ExtractHeaders returns the header row of the first sheet in r.
func (s *Service) ExtractHeaders(ctx context.Context, r io.Reader) ([]string, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	headers, err := sheet.ReadHeaders(r)
	if err != nil {
		return nil, fmt.Errorf("extract headers: %w", err)
	}
	return headers, nil
}

// ProcessRequest is one uploaded spreadsheet and the columns to keep.
type ProcessRequest struct {
	File      io.Reader
	FileName  string
	Selection Selection
}

// ProcessResult names the stored workbook.
type ProcessResult struct {
	Output string `json:"output"`
	Stats  Stats  `json:"stats"`
}

// Process transforms the upload and stores the result under a fresh name.
// Nothing is stored when reading or writing fails.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	records, err := sheet.ReadRecords(req.File)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	result := Transform(records, req.Selection, TransformOptions{KeepFalsy: s.opts.KeepFalsy})

	id := uuid.New()
	output := "processed_" + id.String() + OutputExt

	err = s.store.Create(ctx, output, func(w io.Writer) error {
		return sheet.Write(w, s.opts.SheetName, result.Rows)
	})
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", output, err)
	}

	logger := logging.WithFields(ctx, "output", output)
	logger.Info("spreadsheet processed",
		"source", req.FileName,
		"fields", len(req.Selection),
		"input_rows", result.Stats.InputRows,
		"output_rows", result.Stats.OutputRows,
		"duplicates", result.Stats.DuplicateRows,
	)

	run := history.Run{
		ID:             id.String(),
		Output:         output,
		Source:         req.FileName,
		Fields:         req.Selection,
		InputRows:      result.Stats.InputRows,
		OutputRows:     result.Stats.OutputRows,
		DuplicateRows:  result.Stats.DuplicateRows,
		EmptyPhoneRows: result.Stats.EmptyPhoneRows,
		ClientIP:       GetIPAddressFromContext(ctx),
		UserAgent:      GetUserAgentFromContext(ctx),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.recorder.RecordRun(ctx, run); err != nil {
		logger.Warn("record run failed", "error", err)
	}

	return &ProcessResult{Output: output, Stats: result.Stats}, nil
}

// Download claims name and passes it to send. The file is deleted once
// send succeeds; when send fails it is restored for another attempt.
// Missing or already downloaded files yield ErrFileNotFound.
func (s *Service) Download(ctx context.Context, name string, send func(*storage.Claim) error) error {
	claim, err := s.store.Claim(ctx, name)
	if err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}

	logger := logging.WithFields(ctx, "output", name)

	if err := send(claim); err != nil {
		if relErr := claim.Release(false); relErr != nil {
			logger.Error("restore after failed download", "error", relErr)
		}
		return fmt.Errorf("send %s: %w", name, err)
	}

	if err := claim.Release(true); err != nil {
		logger.Error("remove downloaded file", "error", err)
	}

	if err := s.recorder.MarkDownloaded(ctx, name, time.Now().UTC()); err != nil {
		logger.Warn("mark downloaded failed", "error", err)
	}

	logger.Info("file downloaded", "bytes", claim.Size)
	return nil
}

// RecentRuns lists recent processing runs, newest first.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]history.Run, error) {
	runs, err := s.recorder.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	if runs == nil {
		runs = []history.Run{}
	}
	return runs, nil
}

// LimiterStatus reports job slot usage.
func (s *Service) LimiterStatus() JobLimiterStatus {
	return s.limiter.Status()
}

// WaitForJobs blocks until in-flight jobs finish or ctx ends.
func (s *Service) WaitForJobs(ctx context.Context) error {
	if err := s.limiter.WaitForDrain(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("jobs still running (%d): %w", s.limiter.ActiveCount(), err)
		}
		return err
	}
	return nil
}
