package store

import (
	"fmt"
	"time"
)

// AddPage records a saved page image and returns its id.
func (s *Store) AddPage(imagePath string, ts time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`INSERT INTO pages (image_path, ts, created_at) VALUES (?, ?, ?)`,
		imagePath, ts.UTC().Format(time.RFC3339), now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert page: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("page id: %w", err)
	}
	return id, nil
}

func (s *Store) GetPage(id int64) (*Page, error) {
	p := &Page{}
	var ts, createdAt string
	err := s.db.QueryRow(
		`SELECT id, image_path, ts, created_at FROM pages WHERE id = ?`, id,
	).Scan(&p.ID, &p.ImagePath, &ts, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("get page %d: %w", id, notFound(err))
	}
	p.Timestamp, _ = time.Parse(time.RFC3339, ts)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return p, nil
}

// ListPages returns pages newest first. limit <= 0 means no limit.
func (s *Store) ListPages(limit int) ([]Page, error) {
	query := `SELECT id, image_path, ts, created_at FROM pages ORDER BY ts DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		var ts, createdAt string
		if err := rows.Scan(&p.ID, &p.ImagePath, &ts, &createdAt); err != nil {
			return nil, err
		}
		p.Timestamp, _ = time.Parse(time.RFC3339, ts)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		pages = append(pages, p)
	}
	return pages, rows.Err()
}
