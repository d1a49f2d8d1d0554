package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const clientColumns = `id, company_name, COALESCE(alias, ''), COALESCE(industry, ''),
	COALESCE(stage, ''), COALESCE(website, ''), COALESCE(notes, ''), COALESCE(created_at, '')`

func scanClient(row interface{ Scan(...any) error }) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.CompanyName, &c.Alias, &c.Industry, &c.Stage, &c.Website, &c.Notes, &c.CreatedAt)
	return c, err
}

// minContainedLen is the shortest name or alias that counts as contained in
// a query; shorter ones ("Co", "A") would match almost anything.
const minContainedLen = 3

// SearchClients finds the user's clients whose name or alias contains query,
// or is contained in it, ignoring case.
func (s *Store) SearchClients(ctx context.Context, userID string, query string, limit int) ([]Client, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE user_id = ?
		AND (
			instr(lower(company_name), ?) > 0
			OR (length(trim(company_name)) >= ? AND instr(?, lower(trim(company_name))) > 0)
			OR (alias IS NOT NULL AND alias <> '' AND (
				instr(lower(alias), ?) > 0
				OR (length(trim(alias)) >= ? AND instr(?, lower(trim(alias))) > 0)
			))
		)
		ORDER BY company_name
		LIMIT ?`,
		userID, q, minContainedLen, q, q, minContainedLen, q, limit)
	if err != nil {
		return nil, fmt.Errorf("search clients: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindClientsByName returns every client of the user whose name or alias
// equals name after trimming and lower-casing.
func (s *Store) FindClientsByName(ctx context.Context, userID string, name string) ([]Client, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return nil, nil
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE user_id = ?
		AND (lower(trim(company_name)) = ? OR (alias IS NOT NULL AND lower(trim(alias)) = ?))
		ORDER BY id`,
		userID, n, n)
	if err != nil {
		return nil, fmt.Errorf("find clients by name: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetClient(ctx context.Context, userID string, id int64) (*ClientDetail, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE user_id = ? AND id = ?`, userID, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}

	contacts, err := s.ListContacts(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return &ClientDetail{Client: c, Contacts: contacts}, nil
}

func (s *Store) ListContacts(ctx context.Context, userID string, clientID int64) ([]Contact, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, COALESCE(client_id, 0), COALESCE(contact_name, ''), COALESCE(contact_phone, ''), COALESCE(contact_email, ''), COALESCE(contact_position, '')
		FROM contacts
		WHERE user_id = ? AND client_id = ?
		ORDER BY id`, userID, clientID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := []Contact{}
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.ClientID, &c.Name, &c.Phone, &c.Email, &c.Position); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// ListActivities returns the newest activities first. clientID 0 lists all.
func (s *Store) ListActivities(ctx context.Context, userID string, clientID int64, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, client_id, COALESCE(activity_type, ''), COALESCE(content, ''), COALESCE(activity_date, ''), COALESCE(created_at, '')
		FROM activity_logs
		WHERE user_id = ?`
	args := []any{userID}
	if clientID != 0 {
		query += ` AND client_id = ?`
		args = append(args, clientID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.ClientID, &a.ActivityType, &a.Content, &a.ActivityDate, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListSchedules returns schedules starting within [from, to]; empty bounds are open.
func (s *Store) ListSchedules(ctx context.Context, userID string, from, to string) ([]Schedule, error) {
	query := `
		SELECT id, COALESCE(client_id, 0), title, COALESCE(schedule_type, ''), COALESCE(start_at, ''),
			COALESCE(end_at, ''), COALESCE(location, ''), COALESCE(notes, '')
		FROM schedules
		WHERE user_id = ?`
	args := []any{userID}
	if from != "" {
		query += ` AND start_at >= ?`
		args = append(args, from)
	}
	if to != "" {
		query += ` AND start_at <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY start_at`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		var sc Schedule
		if err := rows.Scan(&sc.ID, &sc.ClientID, &sc.Title, &sc.ScheduleType, &sc.StartAt, &sc.EndAt, &sc.Location, &sc.Notes); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
