package market

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
)

// Notifications stores in-app notices. It is the default Notifier.
type Notifications struct {
	m *Manager
}

var _ Notifier = (*Notifications)(nil)

// Notify stores n as an unread notification.
func (n *Notifications) Notify(ctx context.Context, notice Notice) error {
	return n.m.write(ctx, func(s *scope) error {
		return n.insert(ctx, s, notice)
	})
}

func (n *Notifications) insert(ctx context.Context, s *scope, notice Notice) error {
	if notice.UserID == "" {
		return fmt.Errorf("notification without recipient: %w", ErrInvalidInput)
	}
	return n.m.db.saveNotification(ctx, s.tx, &Notification{
		ID:        n.m.newID(),
		UserID:    notice.UserID,
		Kind:      notice.Kind,
		Title:     notice.Title,
		Body:      notice.Body,
		RelatedID: notice.RelatedID,
		CreatedAt: n.m.Now(),
	})
}

// Broadcast stores the same announcement for every listed user in one write.
func (n *Notifications) Broadcast(ctx context.Context, userIDs []string, title, body string) error {
	return n.m.write(ctx, func(s *scope) error {
		for _, id := range userIDs {
			if err := n.insert(ctx, s, Notice{UserID: id, Kind: NotifyAnnouncement, Title: title, Body: body}); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns the user's notifications, newest first.
func (n *Notifications) List(ctx context.Context, userID string) ([]Notification, error) {
	return n.m.db.listNotifications(ctx, n.m.reader(), goqu.Ex{"user_id": userID})
}

func (n *Notifications) Unread(ctx context.Context, userID string) ([]Notification, error) {
	return n.m.db.listNotifications(ctx, n.m.reader(), goqu.Ex{"user_id": userID, "is_read": false})
}

func (n *Notifications) UnreadCount(ctx context.Context, userID string) (int, error) {
	unread, err := n.Unread(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(unread), nil
}

// owned loads a notification and hides those belonging to someone else.
func (n *Notifications) owned(ctx context.Context, s *scope, userID, id string) (*Notification, error) {
	note, err := n.m.db.getNotification(ctx, s.tx, id)
	if err != nil {
		return nil, err
	}
	if note.UserID != userID {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return note, nil
}

func (n *Notifications) MarkRead(ctx context.Context, userID, id string) error {
	return n.m.write(ctx, func(s *scope) error {
		note, err := n.owned(ctx, s, userID, id)
		if err != nil {
			return err
		}
		note.Read = true
		return n.m.db.saveNotification(ctx, s.tx, note)
	})
}

// MarkAllRead marks every unread notification of the user as read.
func (n *Notifications) MarkAllRead(ctx context.Context, userID string) (int, error) {
	var count int
	err := n.m.write(ctx, func(s *scope) error {
		ds := n.m.db.dialect.Update("notifications").
			Set(goqu.Record{"is_read": true}).
			Where(goqu.Ex{"user_id": userID, "is_read": false}).
			Prepared(true)
		affected, err := exec(ctx, s.tx, ds)
		count = int(affected)
		return err
	})
	return count, err
}

func (n *Notifications) Delete(ctx context.Context, userID, id string) error {
	return n.m.write(ctx, func(s *scope) error {
		if _, err := n.owned(ctx, s, userID, id); err != nil {
			return err
		}
		return n.m.db.deleteByID(ctx, s.tx, "notifications", id)
	})
}
