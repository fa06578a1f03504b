package market

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
)

// Reports collects complaints users file against each other.
type Reports struct {
	m *Manager
}

// NewReport is what a reporter submits. TransactionID is optional.
type NewReport struct {
	ReporterID     string
	ReportedUserID string
	Type           ReportType
	Description    string
	TransactionID  string
}

// Create files a PENDING report.
func (r *Reports) Create(ctx context.Context, in NewReport) (*Report, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("report type %q: %w", in.Type, ErrInvalidInput)
	}
	if in.ReporterID == in.ReportedUserID {
		return nil, fmt.Errorf("cannot report yourself: %w", ErrInvalidInput)
	}
	var rep *Report
	err := r.m.write(ctx, func(s *scope) error {
		if _, err := r.m.db.getUser(ctx, s.tx, in.ReportedUserID); err != nil {
			return err
		}
		if in.TransactionID != "" {
			t, err := r.m.db.getTx(ctx, s.tx, in.TransactionID)
			if err != nil {
				return err
			}
			if !t.IsParticipant(in.ReporterID) {
				return fmt.Errorf("transaction %s: %w", t.ID, ErrNotParticipant)
			}
		}
		rep = &Report{
			ID:             r.m.newID(),
			ReporterID:     in.ReporterID,
			ReportedUserID: in.ReportedUserID,
			TransactionID:  in.TransactionID,
			Type:           in.Type,
			Description:    strings.TrimSpace(in.Description),
			Status:         ReportPending,
			CreatedAt:      r.m.Now(),
		}
		return r.m.db.saveReport(ctx, s.tx, rep)
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (r *Reports) Get(ctx context.Context, id string) (*Report, error) {
	return r.m.db.getReport(ctx, r.m.reader(), id)
}

// All returns every report, newest first.
func (r *Reports) All(ctx context.Context) ([]Report, error) {
	return r.m.db.listReports(ctx, r.m.reader())
}

func (r *Reports) ListPending(ctx context.Context) ([]Report, error) {
	return r.m.db.listReports(ctx, r.m.reader(), goqu.Ex{"status": string(ReportPending)})
}

// ListByUser returns reports filed against the user.
func (r *Reports) ListByUser(ctx context.Context, userID string) ([]Report, error) {
	return r.m.db.listReports(ctx, r.m.reader(), goqu.Ex{"reported_user_id": userID})
}
