package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sadopc/veresia/internal/ledger"
	"github.com/sadopc/veresia/internal/store"
)

// ToCSV writes entries to a new CSV file at path.
func ToCSV(entries []store.Entry, pages map[int64]*store.Page, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()
	return WriteCSV(f, entries, pages)
}

// WriteCSV writes one row per entry. pages resolves page ids to image paths
// and may be nil.
func WriteCSV(out io.Writer, entries []store.Entry, pages map[int64]*store.Page) error {
	w := csv.NewWriter(out)

	if err := w.Write([]string{"ID", "Name", "Amount", "Amount (minor)", "Timestamp", "Page", "Image"}); err != nil {
		return err
	}

	for _, e := range entries {
		pageID, image := pageColumns(e, pages)
		row := []string{
			strconv.FormatInt(e.ID, 10),
			e.Name,
			ledger.FormatAmount(e.Amount),
			strconv.FormatInt(e.Amount, 10),
			e.Timestamp.Local().Format(time.RFC3339),
			pageID,
			image,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func pageColumns(e store.Entry, pages map[int64]*store.Page) (id, image string) {
	if e.PageID == nil {
		return "", ""
	}
	id = strconv.FormatInt(*e.PageID, 10)
	if p, ok := pages[*e.PageID]; ok {
		image = p.ImagePath
	}
	return id, image
}
