package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/vigil/internal/archive"
	"github.com/onnwee/vigil/internal/audit"
	"github.com/onnwee/vigil/internal/jobs"
)

// Archiver uploads an export payload to object storage.
// archive.Service satisfies this.
type Archiver interface {
	StoreExport(ctx context.Context, ext string, data []byte) (*archive.StoredExport, error)
}

// ExportHandlers serves audit log exports. The archiver and reporter are
// optional; without an archiver the archive=true parameter is rejected.
type ExportHandlers struct {
	store    audit.Store
	archiver Archiver
	reporter jobs.Reporter
}

// NewExportHandlers creates the export handlers.
func NewExportHandlers(store audit.Store, archiver Archiver, reporter jobs.Reporter) *ExportHandlers {
	return &ExportHandlers{store: store, archiver: archiver, reporter: reporter}
}

var exportContentTypes = map[audit.ExportFormat]string{
	audit.ExportFormatCSV:  "text/csv; charset=utf-8",
	audit.ExportFormatJSON: "application/json; charset=utf-8",
}

// Export handles GET /v1/exports.
//
// Query parameters:
//
//	format       csv or json (default json)
//	from, to     RFC3339 time range bounds
//	actor_email  filter by actor email
//	action       repeatable; filter by action kind
//	limit        maximum number of entries, 0 for all
//	archive      "true" to upload to object storage instead of
//	             returning the payload
func (h *ExportHandlers) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	q := r.URL.Query()

	format := audit.ExportFormat(q.Get("format"))
	if format == "" {
		format = audit.ExportFormatJSON
	}
	contentType, ok := exportContentTypes[format]
	if !ok {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "format must be csv or json")
		return
	}

	opts := audit.ExportOptions{
		Format:     format,
		ActorEmail: q.Get("actor_email"),
	}

	for _, a := range q["action"] {
		action := audit.Action(a)
		if !knownActions[action] {
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeUnknownAction, "unknown action "+a)
			return
		}
		opts.Actions = append(opts.Actions, action)
	}

	for _, bound := range []struct {
		name string
		dst  *time.Time
	}{
		{"from", &opts.From},
		{"to", &opts.To},
	} {
		if v := q.Get(bound.name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, bound.name+" must be RFC3339")
				return
			}
			*bound.dst = t
		}
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "limit must be a non-negative integer")
			return
		}
		opts.Limit = n
	}

	if q.Get("archive") == "true" {
		if h.archiver == nil {
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "export archiving is not configured")
			return
		}
		var stored *archive.StoredExport
		err := jobs.Track(h.reporter, jobs.JobTypeExportArchive, func() error {
			data, err := audit.ExportLogs(r.Context(), h.store, opts)
			if err != nil {
				return err
			}
			stored, err = h.archiver.StoreExport(r.Context(), string(format), data)
			return err
		})
		if err != nil {
			WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "failed to archive export")
			return
		}
		writeJSON(w, http.StatusCreated, stored)
		return
	}

	data, err := audit.ExportLogs(r.Context(), h.store, opts)
	if err != nil {
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "failed to export audit log")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="audit-export.`+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
