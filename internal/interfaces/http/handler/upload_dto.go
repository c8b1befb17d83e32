package handler

import (
	"github.com/roster/backend/internal/application/upload"
	"github.com/roster/backend/internal/infrastructure/csvimport"
)

// UploadColumnResponse describes one classified column of an upload file
type UploadColumnResponse struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	// Key is set for profile field columns, Index for enumerated ones.
	Key   string `json:"key,omitempty"`
	Index int    `json:"index,omitempty"`
}

// ValidateUploadResponse represents the response from upload validation
type ValidateUploadResponse struct {
	TotalRows int                    `json:"total_rows"`
	Columns   []UploadColumnResponse `json:"columns"`
}

// UploadResponse represents the response from a processed upload batch
type UploadResponse struct {
	BatchID string         `json:"batch_id"`
	Report  *upload.Report `json:"report"`
}

// BatchReportResponse represents a retrieved batch report
type BatchReportResponse struct {
	BatchID string         `json:"batch_id"`
	Report  *upload.Report `json:"report"`
}

func columnKindName(kind csvimport.ColumnKind) string {
	switch kind {
	case csvimport.ColumnStandard:
		return "standard"
	case csvimport.ColumnProfileField:
		return "profile_field"
	case csvimport.ColumnGroup:
		return "group"
	case csvimport.ColumnCourse:
		return "course"
	case csvimport.ColumnRole:
		return "role"
	case csvimport.ColumnType:
		return "type"
	case csvimport.ColumnEnrolStatus:
		return "enrolstatus"
	case csvimport.ColumnEnrolTimeStart:
		return "enroltimestart"
	case csvimport.ColumnEnrolPeriod:
		return "enrolperiod"
	case csvimport.ColumnSysRole:
		return "sysrole"
	default:
		return "unknown"
	}
}

func columnResponses(cs *csvimport.ColumnSet) []UploadColumnResponse {
	cols := cs.Columns()
	out := make([]UploadColumnResponse, 0, len(cols))
	for _, col := range cols {
		out = append(out, UploadColumnResponse{
			Name:  col.Name,
			Kind:  columnKindName(col.Kind),
			Key:   col.Key,
			Index: col.Index,
		})
	}
	return out
}
