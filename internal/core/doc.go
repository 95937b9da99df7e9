// Package core turns uploaded contact spreadsheets into deduplicated
// workbooks.
//
// The package holds the domain logic and knows nothing about HTTP. The web
// handlers and the sheetclean CLI both drive it.
//
// # Transformation
//
// Every record is reduced to the selected columns plus "Phone 1 - Value".
// Phone cells may hold several numbers separated by ":::". Each number is
// normalized by [NormalizePhone]:
//
//  1. every "+91" is removed
//  2. all non-digits are removed
//  3. only the last 10 digits are kept
//
// The numbers of one cell are deduplicated and joined with ", ". Rows are
// then deduplicated on that joined value; the last row wins and keeps the
// position of the first row with the same value. See [Transform].
//
// # Service
//
// [Service] wraps the transformation with storage and history:
//
//   - [Service.ExtractHeaders] reads the header row of an upload.
//   - [Service.Process] transforms an upload and stores the workbook under a
//     random name.
//   - [Service.Download] hands a stored workbook out once and deletes it.
//
// A [JobLimiter] bounds how many workbooks are held in memory at once.
//
// # Error Handling
//
// Failures wrap the sentinels in errors.go. [MapError] turns them into
// user-facing messages with a support code:
//
//   - FILE001-FILE006: upload and download problems
//   - SEL001: malformed field selection
//   - JOB001-JOB003: busy, cancelled or timed out
//   - RATE001: rate limited
package core
