// Package maintenance runs the start-up database chores.
package maintenance

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"ocular/pkg/db"
	"ocular/pkg/model"
	"ocular/pkg/remote"
	"ocular/pkg/store"
)

const contactsStateKey = "contacts_csv_mtime"

// cacheMaxAge bounds how long speech and route responses stay cached.
const cacheMaxAge = 30 * 24 * time.Hour

// Store is the part of the store maintenance touches.
type Store interface {
	store.StateStore
	store.RemoteFieldStore
}

// Run executes all maintenance tasks: the contacts import and cache pruning.
// Failures are logged; start-up continues.
func Run(ctx context.Context, s Store, d *db.DB, csvPath string) error {
	slog.Info("Starting database maintenance...")

	if err := importContacts(ctx, s, csvPath); err != nil {
		slog.Error("Contacts import failed", "error", err)
	} else {
		slog.Info("Contacts import check completed")
	}

	if err := d.PruneCache(cacheMaxAge); err != nil {
		slog.Error("Cache pruning failed", "error", err)
	} else {
		slog.Info("Cache pruning completed")
	}

	return nil
}

// importContacts seeds the last known contacts list from a CSV file when the
// file changed since the previous import. The remote document overwrites the
// seed the next time it is read.
func importContacts(ctx context.Context, s Store, csvPath string) error {
	if csvPath == "" {
		return nil
	}
	info, err := os.Stat(csvPath)
	if os.IsNotExist(err) {
		// Forget the import so a restored copy is read even with its old mtime.
		if _, found := s.GetState(ctx, contactsStateKey); found {
			return s.DeleteState(ctx, contactsStateKey)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat csv: %w", err)
	}

	fileMTime := info.ModTime().UTC().Format(time.RFC3339)
	if stored, found := s.GetState(ctx, contactsStateKey); found && stored == fileMTime {
		return nil
	}

	slog.Info("Importing emergency contacts from CSV...", "path", csvPath)

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	contacts, err := readContacts(csv.NewReader(f))
	if err != nil {
		return err
	}

	data, err := json.Marshal(contacts)
	if err != nil {
		return fmt.Errorf("failed to encode contacts: %w", err)
	}
	if err := s.SetRemoteFields(ctx, map[string][]byte{remote.FieldContacts: data}); err != nil {
		return fmt.Errorf("failed to save contacts: %w", err)
	}
	slog.Info("Imported emergency contacts", "count", len(contacts))

	if err := s.SetState(ctx, contactsStateKey, fileMTime); err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}
	return nil
}

// readContacts parses rows under a Name,Phone header. Rows without a phone
// number are skipped.
func readContacts(reader *csv.Reader) ([]model.Contact, error) {
	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	// Strip a UTF-8 BOM.
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\xef\xbb\xbf")
	}

	idx := make(map[string]int)
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	get := func(row []string, col string) string {
		if i, ok := idx[col]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var out []model.Contact
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv read error: %w", err)
		}
		c := model.Contact{Name: get(record, "name"), Phone: get(record, "phone")}
		if c.Phone == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
