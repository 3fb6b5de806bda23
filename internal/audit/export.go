package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ExportFormat defines supported export formats.
type ExportFormat string

const (
	// ExportFormatCSV exports entries as comma-separated values.
	ExportFormatCSV ExportFormat = "csv"
	// ExportFormatJSON exports entries as a JSON array.
	ExportFormatJSON ExportFormat = "json"
)

// ExportOptions configures audit log export parameters.
type ExportOptions struct {
	Format     ExportFormat // Export format (csv or json)
	From       time.Time    // Start of time range (inclusive)
	To         time.Time    // End of time range (inclusive)
	ActorEmail string       // Filter by actor email (optional)
	Actions    []Action     // Filter by action kinds (optional)
	Limit      int          // Maximum number of entries (0 = no limit)
}

// ExportLogs exports audit entries matching the given options, newest
// first, as bytes in the requested format.
func ExportLogs(ctx context.Context, store Store, opts ExportOptions) ([]byte, error) {
	if opts.Format != ExportFormatCSV && opts.Format != ExportFormatJSON {
		return nil, fmt.Errorf("unsupported export format: %s", opts.Format)
	}

	entries, err := store.FindRecentEntries(ctx, EntryFilter{
		ActorEmail: opts.ActorEmail,
		Actions:    opts.Actions,
		From:       opts.From,
		To:         opts.To,
	}, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries for export: %w", err)
	}

	switch opts.Format {
	case ExportFormatCSV:
		return exportToCSV(entries)
	default:
		return exportToJSON(entries)
	}
}

func exportToCSV(entries []*Entry) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	header := []string{
		"ID",
		"Timestamp (UTC)",
		"Action",
		"Category",
		"Risk",
		"Actor ID",
		"Actor Email",
		"Resource",
		"Success",
		"Error Code",
		"IP Address",
		"Country",
		"City",
		"Device",
		"Browser",
		"OS",
		"Request ID",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range entries {
		var country, city string
		if e.Location != nil {
			country = e.Location.Country
			city = e.Location.City
		}
		row := []string{
			e.ID,
			e.CreatedAt.UTC().Format(time.RFC3339),
			string(e.Action),
			string(e.Category),
			string(e.Risk),
			e.ActorID,
			e.ActorEmail,
			e.Resource,
			strconv.FormatBool(e.Success),
			e.ErrorCode,
			e.IPAddress,
			country,
			city,
			e.Device.Device,
			e.Device.Browser,
			e.Device.OS,
			e.RequestID,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

func exportToJSON(entries []*Entry) ([]byte, error) {
	if entries == nil {
		entries = []*Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entries: %w", err)
	}
	return data, nil
}
