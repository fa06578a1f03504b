package market

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// DefaultEmailDomain is the institutional domain accepted at registration.
const DefaultEmailDomain = "dainam.edu.vn"

// Notice is a notification waiting to be delivered.
type Notice struct {
	UserID    string
	Kind      NotificationKind
	Title     string
	Body      string
	RelatedID string
}

// Notifier delivers notices once the mutation that produced them has
// committed. Delivery failures never undo the mutation.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator replaces the uuid based id source.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

// WithLogger sets the logger for persistence and notification failures.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithNotifier routes notices somewhere other than the notifications table.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithEmailDomain sets the institutional domain registration requires.
func WithEmailDomain(domain string) Option {
	return func(m *Manager) { m.emailDomain = domain }
}

// WithPasswordCost sets the bcrypt cost used for new password hashes.
func WithPasswordCost(cost int) Option {
	return func(m *Manager) { m.passwordCost = cost }
}

// Manager is a thin façade over the Database. Every mutation runs
// validate, mutate and persist inside one database transaction while holding
// mu, so readers never observe a half-applied transition.
type Manager struct {
	db *Database
	mu sync.Mutex

	now          func() time.Time
	newID        func() string
	log          *slog.Logger
	notifier     Notifier
	emailDomain  string
	passwordCost int

	Books         *BookRegistry
	Transactions  *TransactionEngine
	Trust         *TrustScores
	Users         *Users
	Notifications *Notifications
	Reports       *Reports
	Admin         *Admin
}

// NewManager wires the services around an open database.
func NewManager(db *Database, opts ...Option) *Manager {
	m := &Manager{
		db:           db,
		now:          time.Now,
		newID:        uuid.NewString,
		log:          slog.Default(),
		emailDomain:  DefaultEmailDomain,
		passwordCost: bcrypt.DefaultCost,
	}
	m.Books = &BookRegistry{m: m}
	m.Transactions = &TransactionEngine{m: m}
	m.Trust = &TrustScores{m: m}
	m.Users = &Users{m: m}
	m.Notifications = &Notifications{m: m}
	m.Reports = &Reports{m: m}
	m.Admin = &Admin{m: m}
	m.notifier = m.Notifications

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open opens (or creates) the database and returns a Manager over it.
func Open(driver, dsn string, opts ...Option) (*Manager, error) {
	db, err := NewDatabase(driver, dsn)
	if err != nil {
		return nil, err
	}
	return NewManager(db, opts...), nil
}

// Close closes the underlying database.
func (m *Manager) Close() error { return m.db.Close() }

// Now returns the manager's clock reading in UTC, truncated to what every
// supported driver stores losslessly.
func (m *Manager) Now() time.Time { return m.now().UTC().Truncate(time.Microsecond) }

// ------------------ write path ------------------

// scope is the state of one in-flight mutation.
type scope struct {
	tx      *sqlx.Tx
	notices []Notice
}

func (s *scope) notify(n Notice) { s.notices = append(s.notices, n) }

// write serialises mutations and commits fn atomically. Notices queued by fn
// are dispatched after commit and after the lock is released.
func (m *Manager) write(ctx context.Context, fn func(s *scope) error) error {
	s := &scope{}
	m.mu.Lock()
	err := m.db.inTx(ctx, func(tx *sqlx.Tx) error {
		s.tx = tx
		return fn(s)
	})
	m.mu.Unlock()
	if err != nil {
		return err
	}

	dctx := context.WithoutCancel(ctx)
	for _, n := range s.notices {
		if err := m.notifier.Notify(dctx, n); err != nil {
			m.log.Warn("notification dropped", "user", n.UserID, "kind", n.Kind, "err", err)
		}
	}
	return nil
}

func (m *Manager) reader() *sqlx.DB { return m.db.db }
