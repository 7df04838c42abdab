package store

import "time"

type Page struct {
	ID        int64
	ImagePath string
	Timestamp time.Time
	CreatedAt time.Time
}

type Entry struct {
	ID        int64
	Name      string
	Amount    int64 // minor units
	Timestamp time.Time
	PageID    *int64
	CreatedAt time.Time
}

type Setting struct {
	Key   string
	Value string
}

// EntryFilter is used to filter ledger entries in queries.
type EntryFilter struct {
	Name   string // exact match
	PageID *int64
	From   *time.Time
	To     *time.Time
	Limit  int
}

// NameTotal is the aggregated balance of one name.
type NameTotal struct {
	Name       string
	Total      int64
	EntryCount int
}
