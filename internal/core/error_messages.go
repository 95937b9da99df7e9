package core

// error_messages.go maps technical errors to user-facing messages with codes
// that can be quoted to support.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum upload size
//	          Patterns: "file too large", "request body too large"
//	FILE002 - Invalid spreadsheet: File is not a readable .xlsx workbook
//	          Patterns: "invalid spreadsheet"
//	FILE003 - No headers: The first sheet has no header row
//	          Patterns: "no headers found"
//	FILE004 - No file: No file was selected
//	          Patterns: "no file provided"
//	FILE005 - Write failed: The processed spreadsheet could not be created
//	          Patterns: "spreadsheet write failed", "storage write failed"
//	FILE006 - File not found: The file does not exist or was already downloaded
//	          Patterns: "file not found", "invalid file name"
//
// # Selection Errors (SEL001-SEL099)
//
//	SEL001 - Invalid selection: The "fields" value is not a JSON array of names
//	         Patterns: "invalid field selection"
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - System busy: Too many spreadsheets are being processed
//	         Patterns: "too many concurrent jobs"
//	JOB002 - Request cancelled
//	         Patterns: "context canceled"
//	JOB003 - Request timeout
//	         Patterns: "context deadline exceeded"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no pattern matches. Check the server logs for the request ID.
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgTooLarge = UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the spreadsheet into smaller files",
		Code:    "FILE001",
	}
	msgWriteFailed = UserMessage{
		Message: "The processed spreadsheet could not be created",
		Action:  "Please try again",
		Code:    "FILE005",
	}
	msgNotFound = UserMessage{
		Message: "File not found",
		Action:  "Download links work once. Process the spreadsheet again to get a new link",
		Code:    "FILE006",
	}
)

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
var errorPatterns = []errorPattern{
	// File errors
	{pattern: "file too large", msg: msgTooLarge},
	{pattern: "request body too large", msg: msgTooLarge},
	{
		pattern: "invalid spreadsheet",
		msg: UserMessage{
			Message: "File is not a readable spreadsheet",
			Action:  "Upload an .xlsx workbook",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no headers found",
		msg: UserMessage{
			Message: "No headers found in the file",
			Action:  "Put the column names in the first row of the first sheet",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a spreadsheet to upload",
			Code:    "FILE004",
		},
	},
	{pattern: "spreadsheet write failed", msg: msgWriteFailed},
	{pattern: "storage write failed", msg: msgWriteFailed},
	{pattern: "file not found", msg: msgNotFound},
	{pattern: "invalid file name", msg: msgNotFound},

	// Selection errors
	{
		pattern: "invalid field selection",
		msg: UserMessage{
			Message: "The selected fields could not be read",
			Action:  `Send "fields" as a JSON array of column names`,
			Code:    "SEL001",
		},
	},

	// Job errors
	{
		pattern: "too many concurrent jobs",
		msg: UserMessage{
			Message: "System is busy processing other spreadsheets",
			Action:  "Please wait a moment and try again",
			Code:    "JOB001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "JOB002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "JOB003",
		},
	},

	// Rate limiting
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first matching pattern, or the ERR000 fallback.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
