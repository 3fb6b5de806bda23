package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/onnwee/vigil/internal/tracing"
)

// PostgresStore implements Store and IPAnonymizer on PostgreSQL via
// database/sql + lib/pq. Schema lives in migrations/.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a PostgresStore around an open connection.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// CreateEntry appends one audit entry.
func (s *PostgresStore) CreateEntry(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	before, err := marshalPayload(entry.Before)
	if err != nil {
		return fmt.Errorf("failed to encode before payload: %w", err)
	}
	after, err := marshalPayload(entry.After)
	if err != nil {
		return fmt.Errorf("failed to encode after payload: %w", err)
	}
	details, err := marshalPayload(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details payload: %w", err)
	}

	var country, city sql.NullString
	var lat, lon sql.NullFloat64
	if entry.Location != nil {
		country = sql.NullString{String: entry.Location.Country, Valid: true}
		city = sql.NullString{String: entry.Location.City, Valid: true}
		lat = sql.NullFloat64{Float64: entry.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: entry.Location.Longitude, Valid: true}
	}

	ctx, done := tracing.StartDBSpan(ctx, "audit_logs", tracing.DBOperationInsert)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, action, actor_id, actor_email, actor_name, resource,
			success, error_code, error_message,
			before_data, after_data, details,
			ip_address, user_agent, device, browser, os,
			geo_country, geo_city, geo_latitude, geo_longitude,
			category, risk, http_method, http_path, duration_ms,
			request_id, session_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26,
			$27, $28, $29
		)`,
		entry.ID, string(entry.Action), entry.ActorID, entry.ActorEmail,
		entry.ActorName, entry.Resource, entry.Success, entry.ErrorCode,
		entry.ErrorMessage, before, after, details,
		entry.IPAddress, entry.UserAgent,
		entry.Device.Device, entry.Device.Browser, entry.Device.OS,
		country, city, lat, lon,
		string(entry.Category), string(entry.Risk),
		entry.Method, entry.Path, entry.DurationMS,
		entry.RequestID, entry.SessionID, entry.CreatedAt,
	)
	done(err)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// CountEntries returns the number of entries matching the filter.
func (s *PostgresStore) CountEntries(ctx context.Context, f EntryFilter) (int, error) {
	where, args := buildEntryWhere(f)
	query := "SELECT COUNT(*) FROM audit_logs" + where

	ctx, done := tracing.StartDBSpan(ctx, "audit_logs", tracing.DBOperationQuery)
	var count int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	done(err)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return count, nil
}

// FindRecentEntries returns matching entries, newest first.
func (s *PostgresStore) FindRecentEntries(ctx context.Context, f EntryFilter, limit int) ([]*Entry, error) {
	where, args := buildEntryWhere(f)
	query := `
		SELECT id, action, actor_id, actor_email, actor_name, resource,
			success, error_code, error_message,
			before_data, after_data, details,
			ip_address, user_agent, device, browser, os,
			geo_country, geo_city, geo_latitude, geo_longitude,
			category, risk, http_method, http_path, duration_ms,
			request_id, session_id, created_at
		FROM audit_logs` + where + " ORDER BY created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	ctx, done := tracing.StartDBSpan(ctx, "audit_logs", tracing.DBOperationQuery)
	rows, err := s.db.QueryContext(ctx, query, args...)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var results []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, entry)
	}
	return results, rows.Err()
}

// CreateAlert persists a new security alert.
func (s *PostgresStore) CreateAlert(ctx context.Context, alert *SecurityAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	metadata, err := marshalPayload(alert.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode alert metadata: %w", err)
	}

	var country, city sql.NullString
	if alert.Location != nil {
		country = sql.NullString{String: alert.Location.Country, Valid: true}
		city = sql.NullString{String: alert.Location.City, Valid: true}
	}
	var notifiedAt sql.NullTime
	if alert.NotifiedAt != nil {
		notifiedAt = sql.NullTime{Time: *alert.NotifiedAt, Valid: true}
	}

	ctx, done := tracing.StartDBSpan(ctx, "security_alerts", tracing.DBOperationInsert)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO security_alerts (
			id, type, severity, title, description,
			actor_id, actor_email, ip_address, geo_country, geo_city,
			entry_ids, metadata, state, notified, notified_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17
		)`,
		alert.ID, string(alert.Type), string(alert.Severity), alert.Title,
		alert.Description, alert.ActorID, alert.ActorEmail, alert.IPAddress,
		country, city, pq.Array(alert.EntryIDs), metadata,
		string(alert.State), alert.Notified, notifiedAt,
		alert.CreatedAt, alert.UpdatedAt,
	)
	done(err)
	if err != nil {
		return fmt.Errorf("failed to insert security alert: %w", err)
	}
	return nil
}

// UpdateAlert persists changes to an existing alert.
func (s *PostgresStore) UpdateAlert(ctx context.Context, alert *SecurityAlert) error {
	metadata, err := marshalPayload(alert.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode alert metadata: %w", err)
	}
	var notifiedAt sql.NullTime
	if alert.NotifiedAt != nil {
		notifiedAt = sql.NullTime{Time: *alert.NotifiedAt, Valid: true}
	}

	ctx, done := tracing.StartDBSpan(ctx, "security_alerts", tracing.DBOperationUpdate)
	res, err := s.db.ExecContext(ctx, `
		UPDATE security_alerts
		SET severity = $2, description = $3, entry_ids = $4, metadata = $5,
			state = $6, notified = $7, notified_at = $8, updated_at = $9
		WHERE id = $1`,
		alert.ID, string(alert.Severity), alert.Description,
		pq.Array(alert.EntryIDs), metadata, string(alert.State),
		alert.Notified, notifiedAt, alert.UpdatedAt,
	)
	done(err)
	if err != nil {
		return fmt.Errorf("failed to update security alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// FindOpenAlert returns the newest alert matching the filter, or nil.
func (s *PostgresStore) FindOpenAlert(ctx context.Context, f AlertFilter) (*SecurityAlert, error) {
	alerts, err := s.FindAlerts(ctx, f, 1)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, nil
	}
	return alerts[0], nil
}

// FindAlerts returns matching alerts, newest first.
func (s *PostgresStore) FindAlerts(ctx context.Context, f AlertFilter, limit int) ([]*SecurityAlert, error) {
	var conds []string
	var args []any

	if f.Type != "" {
		args = append(args, string(f.Type))
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.ActorID != "" {
		args = append(args, f.ActorID)
		conds = append(conds, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if f.ActorEmail != "" {
		args = append(args, f.ActorEmail)
		conds = append(conds, fmt.Sprintf("actor_email = $%d", len(args)))
	}
	if len(f.States) > 0 {
		states := make([]string, len(f.States))
		for i, st := range f.States {
			states[i] = string(st)
		}
		args = append(args, pq.Array(states))
		conds = append(conds, fmt.Sprintf("state = ANY($%d)", len(args)))
	}
	if !f.CreatedAfter.IsZero() {
		args = append(args, f.CreatedAfter)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `
		SELECT id, type, severity, title, description,
			actor_id, actor_email, ip_address, geo_country, geo_city,
			entry_ids, metadata, state, notified, notified_at,
			created_at, updated_at
		FROM security_alerts`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	ctx, done := tracing.StartDBSpan(ctx, "security_alerts", tracing.DBOperationQuery)
	rows, err := s.db.QueryContext(ctx, query, args...)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("failed to query security alerts: %w", err)
	}
	defer rows.Close()

	var results []*SecurityAlert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, alert)
	}
	return results, rows.Err()
}

// AnonymizeEntryIPsBefore implements IPAnonymizer. IPv4 IPs lose their
// last octet; IPv6 IPs lose their last 80 bits. Done in SQL for IPv4 and
// row-by-row for the rest would be overkill here: the anonymized form is
// computed in Go and written back in one statement per distinct IP.
func (s *PostgresStore) AnonymizeEntryIPsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ip_address FROM audit_logs
		WHERE created_at < $1 AND ip_address <> ''`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list entry IPs: %w", err)
	}
	defer rows.Close()

	var ips []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return 0, err
		}
		ips = append(ips, ip)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	touched := 0
	for _, ip := range ips {
		anon := AnonymizeIP(ip)
		if anon == "" || anon == ip {
			continue
		}
		res, err := s.db.ExecContext(ctx, `
			UPDATE audit_logs SET ip_address = $1
			WHERE ip_address = $2 AND created_at < $3`, anon, ip, cutoff)
		if err != nil {
			return touched, fmt.Errorf("failed to anonymize entry IPs: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			touched += int(n)
		}
	}
	return touched, nil
}

func buildEntryWhere(f EntryFilter) (string, []any) {
	var conds []string
	var args []any

	if f.ActorID != "" {
		args = append(args, f.ActorID)
		conds = append(conds, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if f.ActorEmail != "" {
		args = append(args, f.ActorEmail)
		conds = append(conds, fmt.Sprintf("actor_email = $%d", len(args)))
	}
	if len(f.Actions) > 0 {
		actions := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			actions[i] = string(a)
		}
		args = append(args, pq.Array(actions))
		conds = append(conds, fmt.Sprintf("action = ANY($%d)", len(args)))
	}
	if f.Success != nil {
		args = append(args, *f.Success)
		conds = append(conds, fmt.Sprintf("success = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var e Entry
	var before, after, details []byte
	var country, city sql.NullString
	var lat, lon sql.NullFloat64
	var action, category, risk string

	err := rows.Scan(
		&e.ID, &action, &e.ActorID, &e.ActorEmail, &e.ActorName,
		&e.Resource, &e.Success, &e.ErrorCode, &e.ErrorMessage,
		&before, &after, &details,
		&e.IPAddress, &e.UserAgent,
		&e.Device.Device, &e.Device.Browser, &e.Device.OS,
		&country, &city, &lat, &lon,
		&category, &risk, &e.Method, &e.Path, &e.DurationMS,
		&e.RequestID, &e.SessionID, &e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit entry: %w", err)
	}

	e.Action = Action(action)
	e.Category = Category(category)
	e.Risk = RiskLevel(risk)
	e.Before = unmarshalPayload(before)
	e.After = unmarshalPayload(after)
	e.Details = unmarshalPayload(details)
	if country.Valid {
		e.Location = &Location{
			Country:   country.String,
			City:      city.String,
			Latitude:  lat.Float64,
			Longitude: lon.Float64,
		}
	}
	return &e, nil
}

func scanAlert(rows *sql.Rows) (*SecurityAlert, error) {
	var a SecurityAlert
	var metadata []byte
	var country, city sql.NullString
	var notifiedAt sql.NullTime
	var typ, severity, state string

	err := rows.Scan(
		&a.ID, &typ, &severity, &a.Title, &a.Description,
		&a.ActorID, &a.ActorEmail, &a.IPAddress, &country, &city,
		pq.Array(&a.EntryIDs), &metadata, &state, &a.Notified, &notifiedAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan security alert: %w", err)
	}

	a.Type = AlertType(typ)
	a.Severity = RiskLevel(severity)
	a.State = AlertState(state)
	if notifiedAt.Valid {
		t := notifiedAt.Time
		a.NotifiedAt = &t
	}
	if country.Valid {
		a.Location = &Location{Country: country.String, City: city.String}
	}
	if len(metadata) > 0 {
		var m map[string]any
		if err := json.Unmarshal(metadata, &m); err == nil {
			a.Metadata = m
		}
	}
	return &a, nil
}

func marshalPayload(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalPayload(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	return v
}
