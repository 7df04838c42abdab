// Package pgstore keeps the ledger in PostgreSQL through gorm. It offers the
// same operations as the SQLite store for the HTTP server.
package pgstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sadopc/veresia/internal/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Page struct {
	ID        int64     `gorm:"primaryKey"`
	ImagePath string    `gorm:"type:text;not null"`
	Timestamp time.Time `gorm:"column:ts;not null;index"`
	CreatedAt time.Time
}

type Entry struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"type:text;not null;index"`
	Amount    int64     `gorm:"not null"` // minor units
	Timestamp time.Time `gorm:"column:ts;not null"`
	PageID    *int64    `gorm:"index"`
	Page      *Page     `gorm:"constraint:OnDelete:SET NULL"`
	CreatedAt time.Time
}

func (Page) TableName() string  { return "pages" }
func (Entry) TableName() string { return "entries" }

type Store struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(&Page{}, &Entry{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) AddPage(imagePath string, ts time.Time) (int64, error) {
	p := Page{ImagePath: imagePath, Timestamp: ts.UTC()}
	if err := s.db.Create(&p).Error; err != nil {
		return 0, fmt.Errorf("insert page: %w", err)
	}
	return p.ID, nil
}

func (s *Store) GetPage(id int64) (*store.Page, error) {
	var p Page
	if err := s.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = store.ErrNotFound
		}
		return nil, fmt.Errorf("get page %d: %w", id, err)
	}
	out := p.toStore()
	return &out, nil
}

func (s *Store) AddEntry(name string, amount int64, ts time.Time, pageID *int64) (int64, error) {
	e := Entry{Name: name, Amount: amount, Timestamp: ts.UTC(), PageID: pageID}
	if err := s.db.Create(&e).Error; err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	return e.ID, nil
}

func (s *Store) ListEntriesByName(name string) ([]store.Entry, error) {
	var rows []Entry
	err := s.db.Where("name = ?", name).Order("ts ASC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list entries for %q: %w", name, err)
	}
	return entriesToStore(rows), nil
}

func (s *Store) EntriesForPage(pageID int64) ([]store.Entry, error) {
	var rows []Entry
	err := s.db.Where("page_id = ?", pageID).Order("ts ASC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list entries for page %d: %w", pageID, err)
	}
	return entriesToStore(rows), nil
}

func (s *Store) SumByName(name string) (int64, error) {
	var total int64
	err := s.db.Model(&Entry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("name = ?", name).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum for %q: %w", name, err)
	}
	return total, nil
}

// SearchNames returns per-name totals for names containing q, largest
// balance first.
func (s *Store) SearchNames(q string) ([]store.NameTotal, error) {
	var rows []struct {
		Name       string
		Total      int64
		EntryCount int
	}
	err := s.db.Model(&Entry{}).
		Select("name, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS entry_count").
		Where("name ILIKE ?", "%"+likeEscaper.Replace(q)+"%").
		Group("name").
		Order("total DESC, name").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("search names: %w", err)
	}
	out := make([]store.NameTotal, len(rows))
	for i, r := range rows {
		out[i] = store.NameTotal{Name: r.Name, Total: r.Total, EntryCount: r.EntryCount}
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (p Page) toStore() store.Page {
	return store.Page{ID: p.ID, ImagePath: p.ImagePath, Timestamp: p.Timestamp.UTC(), CreatedAt: p.CreatedAt.UTC()}
}

func (e Entry) toStore() store.Entry {
	return store.Entry{
		ID:        e.ID,
		Name:      e.Name,
		Amount:    e.Amount,
		Timestamp: e.Timestamp.UTC(),
		PageID:    e.PageID,
		CreatedAt: e.CreatedAt.UTC(),
	}
}

func entriesToStore(rows []Entry) []store.Entry {
	if len(rows) == 0 {
		return nil
	}
	out := make([]store.Entry, len(rows))
	for i, r := range rows {
		out[i] = r.toStore()
	}
	return out
}
