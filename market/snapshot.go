package market

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Snapshot is the whole dataset, the load-all/save-all view of the store.
type Snapshot struct {
	ExportedAt    time.Time      `json:"exported_at"`
	Users         []snapshotUser `json:"users"`
	Books         []Book         `json:"books"`
	Transactions  []Transaction  `json:"transactions"`
	Notifications []Notification `json:"notifications"`
	Reports       []Report       `json:"reports"`
}

// snapshotUser keeps the password hash, which User never serialises.
type snapshotUser struct {
	User
	PasswordHash string `json:"password_hash"`
}

// LoadAll reads every record from the store.
func (m *Manager) LoadAll(ctx context.Context) (*Snapshot, error) {
	q := m.reader()
	snap := &Snapshot{ExportedAt: m.Now()}

	users, err := m.db.listUsers(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for _, u := range users {
		snap.Users = append(snap.Users, snapshotUser{User: u, PasswordHash: u.PasswordHash})
	}
	if snap.Books, err = m.db.listBooks(ctx, q, nil); err != nil {
		return nil, fmt.Errorf("load books: %w", err)
	}
	if snap.Transactions, err = m.db.listTxs(ctx, q); err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	if snap.Notifications, err = m.db.listNotifications(ctx, q, nil); err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	if snap.Reports, err = m.db.listReports(ctx, q); err != nil {
		return nil, fmt.Errorf("load reports: %w", err)
	}
	return snap, nil
}

// SaveAll upserts every record of snap in one transaction. Records already
// in the store but absent from snap are left alone.
func (m *Manager) SaveAll(ctx context.Context, snap *Snapshot) error {
	return m.write(ctx, func(s *scope) error {
		for i := range snap.Users {
			u := snap.Users[i].User
			u.PasswordHash = snap.Users[i].PasswordHash
			if err := m.db.saveUser(ctx, s.tx, &u); err != nil {
				return err
			}
		}
		for i := range snap.Books {
			if err := m.db.saveBook(ctx, s.tx, &snap.Books[i]); err != nil {
				return err
			}
		}
		for i := range snap.Transactions {
			if err := m.db.saveTx(ctx, s.tx, &snap.Transactions[i]); err != nil {
				return err
			}
		}
		for i := range snap.Notifications {
			if err := m.db.saveNotification(ctx, s.tx, &snap.Notifications[i]); err != nil {
				return err
			}
		}
		for i := range snap.Reports {
			if err := m.db.saveReport(ctx, s.tx, &snap.Reports[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExportSnapshot writes the whole dataset to w as indented JSON.
func (m *Manager) ExportSnapshot(ctx context.Context, w io.Writer) error {
	snap, err := m.LoadAll(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// ImportSnapshot reads a snapshot written by ExportSnapshot and saves it.
func (m *Manager) ImportSnapshot(ctx context.Context, r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := m.SaveAll(ctx, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
