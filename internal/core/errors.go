package core

import (
	"errors"

	"github.com/JonMunkholm/sheetclean/internal/sheet"
	"github.com/JonMunkholm/sheetclean/internal/storage"
)

// Error kinds surfaced by the service. Callers match them with errors.Is;
// the wrapped detail is for logs only.
var (
	// ErrNoHeader means the first sheet has no header row.
	ErrNoHeader = sheet.ErrNoHeader

	// ErrParse means the upload is not a readable spreadsheet.
	ErrParse = sheet.ErrParse

	// ErrSerialization means the output spreadsheet could not be produced.
	ErrSerialization = sheet.ErrSerialization

	// ErrInvalidSelection means the field selection payload is malformed.
	ErrInvalidSelection = errors.New("invalid field selection")

	// ErrFileNotFound means a download was requested for a file that does
	// not exist or was already downloaded.
	ErrFileNotFound = storage.ErrNotFound

	// ErrNoFile means the request carried no spreadsheet.
	ErrNoFile = errors.New("no file provided")

	// ErrFileTooLarge means the request exceeded the upload size limit.
	ErrFileTooLarge = errors.New("file too large")
)
