package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/veresia/internal/ledger"
	"github.com/sadopc/veresia/internal/store"
)

type jsonExport struct {
	ExportedAt string      `json:"exported_at"`
	Count      int         `json:"count"`
	Total      string      `json:"total"`
	Entries    []jsonEntry `json:"entries"`
}

type jsonEntry struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Amount      string `json:"amount"`
	AmountMinor int64  `json:"amount_minor"`
	Timestamp   string `json:"timestamp"`
	PageID      *int64 `json:"page_id,omitempty"`
	Image       string `json:"image,omitempty"`
}

// ToJSON writes entries and their grand total to path.
func ToJSON(entries []store.Entry, pages map[int64]*store.Page, path string) error {
	data, err := MarshalJSON(entries, pages)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}

// MarshalJSON renders the export document.
func MarshalJSON(entries []store.Entry, pages map[int64]*store.Page) ([]byte, error) {
	export := jsonExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      len(entries),
		Entries:    []jsonEntry{},
	}

	var total int64
	for _, e := range entries {
		total += e.Amount
		je := jsonEntry{
			ID:          e.ID,
			Name:        e.Name,
			Amount:      ledger.FormatAmount(e.Amount),
			AmountMinor: e.Amount,
			Timestamp:   e.Timestamp.Local().Format(time.RFC3339),
			PageID:      e.PageID,
		}
		if e.PageID != nil {
			if p, ok := pages[*e.PageID]; ok {
				je.Image = p.ImagePath
			}
		}
		export.Entries = append(export.Entries, je)
	}
	export.Total = ledger.FormatAmount(total)

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return data, nil
}
