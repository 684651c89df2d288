// Package export renders comparison tables as spreadsheets.
package export

import "errors"

const (
	// Filename is the name offered for downloads.
	Filename = "polarization-measures.xlsx"
	MimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// maxSheetName is Excel's sheet name limit, in characters.
	maxSheetName = 31
)

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrNothingToExport indicates no table has a member to export.
	ErrNothingToExport = errors.New("export: no table has distributions")
	// ErrUploadDisabled indicates object storage is not configured.
	ErrUploadDisabled = errors.New("export: object storage not configured")
)
