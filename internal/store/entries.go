package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const entryColumns = `id, name, amount, ts, page_id, created_at`

// AddEntry records one ledger line. pageID may be nil.
func (s *Store) AddEntry(name string, amount int64, ts time.Time, pageID *int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`INSERT INTO entries (name, amount, ts, page_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		name, amount, ts.UTC().Format(time.RFC3339), pageID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("entry id: %w", err)
	}
	return id, nil
}

func (s *Store) GetEntry(id int64) (*Entry, error) {
	row := s.db.QueryRow(`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("get entry %d: %w", id, notFound(err))
	}
	return e, nil
}

// ListEntriesByName returns every entry recorded under exactly name,
// oldest first.
func (s *Store) ListEntriesByName(name string) ([]Entry, error) {
	return s.queryEntries(`SELECT `+entryColumns+` FROM entries WHERE name = ? ORDER BY ts ASC, id ASC`, name)
}

// SumByName returns the total of all amounts recorded under name, 0 if none.
func (s *Store) SumByName(name string) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM entries WHERE name = ?`, name).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum for %q: %w", name, err)
	}
	return total.Int64, nil
}

// SearchNames returns per-name totals for names containing q, largest
// balance first. An empty q matches every name.
func (s *Store) SearchNames(q string) ([]NameTotal, error) {
	rows, err := s.db.Query(`
		SELECT name, COALESCE(SUM(amount), 0) AS total, COUNT(*)
		FROM entries
		WHERE name LIKE ? ESCAPE '\'
		GROUP BY name
		ORDER BY total DESC, name`,
		"%"+escapeLike(q)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("search names: %w", err)
	}
	defer rows.Close()

	var totals []NameTotal
	for rows.Next() {
		var nt NameTotal
		if err := rows.Scan(&nt.Name, &nt.Total, &nt.EntryCount); err != nil {
			return nil, err
		}
		totals = append(totals, nt)
	}
	return totals, rows.Err()
}

// EntriesForPage returns the entries persisted from one page save.
func (s *Store) EntriesForPage(pageID int64) ([]Entry, error) {
	return s.ListEntries(EntryFilter{PageID: &pageID})
}

// ListEntries returns entries ordered by timestamp then id. An empty Name
// does not filter by name.
func (s *Store) ListEntries(f EntryFilter) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE 1=1`
	var args []any

	if f.Name != "" {
		query += ` AND name = ?`
		args = append(args, f.Name)
	}
	if f.PageID != nil {
		query += ` AND page_id = ?`
		args = append(args, *f.PageID)
	}
	if f.From != nil {
		query += ` AND ts >= ?`
		args = append(args, f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		query += ` AND ts < ?`
		args = append(args, f.To.UTC().Format(time.RFC3339))
	}
	query += ` ORDER BY ts ASC, id ASC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	return s.queryEntries(query, args...)
}

func (s *Store) queryEntries(query string, args ...any) ([]Entry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*Entry, error) {
	e := &Entry{}
	var ts, createdAt string
	var pageID sql.NullInt64
	if err := sc.Scan(&e.ID, &e.Name, &e.Amount, &ts, &pageID, &createdAt); err != nil {
		return nil, err
	}
	if pageID.Valid {
		e.PageID = &pageID.Int64
	}
	e.Timestamp, _ = time.Parse(time.RFC3339, ts)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return e, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
