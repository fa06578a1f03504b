package market

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLen is the shortest password accepted at registration.
const MinPasswordLen = 6

// Users manages accounts, credentials and favourites.
type Users struct {
	m *Manager
}

// Registration is the data needed to open an account.
type Registration struct {
	Email     string
	Password  string
	FullName  string
	StudentID string
}

// Profile holds the user-editable fields.
type Profile struct {
	FullName string
	Phone    string
	Faculty  string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *Users) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), u.m.passwordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Register opens a student account on the institutional email domain.
func (u *Users) Register(ctx context.Context, r Registration) (*User, error) {
	email := normalizeEmail(r.Email)
	studentID := strings.TrimSpace(r.StudentID)
	if !strings.HasSuffix(email, "@"+u.m.emailDomain) {
		return nil, fmt.Errorf("email must end with @%s: %w", u.m.emailDomain, ErrInvalidInput)
	}
	if studentID == "" || strings.TrimSpace(r.FullName) == "" {
		return nil, fmt.Errorf("full name and student id are required: %w", ErrInvalidInput)
	}
	if len(r.Password) < MinPasswordLen {
		return nil, fmt.Errorf("password shorter than %d: %w", MinPasswordLen, ErrInvalidInput)
	}
	hash, err := u.hash(r.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           u.m.newID(),
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(r.FullName),
		StudentID:    studentID,
		Role:         RoleStudent,
		TrustScore:   InitialTrust,
		Active:       true,
		Favorites:    IDList{},
		CreatedAt:    u.m.Now(),
	}
	err = u.m.write(ctx, func(s *scope) error {
		return u.insert(ctx, s, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (u *Users) insert(ctx context.Context, s *scope, user *User) error {
	if _, err := u.m.db.findUser(ctx, s.tx, goqu.Ex{"email": user.Email}); err == nil {
		return fmt.Errorf("%s: %w", user.Email, ErrEmailTaken)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, err := u.m.db.findUser(ctx, s.tx, goqu.Ex{"student_id": user.StudentID}); err == nil {
		return fmt.Errorf("%s: %w", user.StudentID, ErrStudentIDTaken)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return u.m.db.saveUser(ctx, s.tx, user)
}

// Login checks the credentials and that the account is not locked.
func (u *Users) Login(ctx context.Context, email, password string) (*User, error) {
	user, err := u.m.db.findUser(ctx, u.m.reader(), goqu.Ex{"email": normalizeEmail(email)})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}
	if !user.Active {
		return nil, fmt.Errorf("%s: %w", user.Email, ErrAccountLocked)
	}
	return user, nil
}

func (u *Users) Get(ctx context.Context, userID string) (*User, error) {
	return u.m.db.getUser(ctx, u.m.reader(), userID)
}

func (u *Users) GetByEmail(ctx context.Context, email string) (*User, error) {
	user, err := u.m.db.findUser(ctx, u.m.reader(), goqu.Ex{"email": normalizeEmail(email)})
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", email, err)
	}
	return user, nil
}

// List returns all accounts in registration order.
func (u *Users) List(ctx context.Context) ([]User, error) {
	return u.m.db.listUsers(ctx, u.m.reader())
}

// Search matches keyword against name, email and student id.
func (u *Users) Search(ctx context.Context, keyword string) ([]User, error) {
	all, err := u.List(ctx)
	if err != nil {
		return nil, err
	}
	kw := strings.ToLower(strings.TrimSpace(keyword))
	out := all[:0]
	for _, user := range all {
		if strings.Contains(strings.ToLower(user.FullName), kw) ||
			strings.Contains(user.Email, kw) ||
			strings.Contains(strings.ToLower(user.StudentID), kw) {
			out = append(out, user)
		}
	}
	return out, nil
}

func (u *Users) modify(ctx context.Context, userID string, fn func(user *User) error) (*User, error) {
	var out *User
	err := u.m.write(ctx, func(s *scope) error {
		user, err := u.m.db.getUser(ctx, s.tx, userID)
		if err != nil {
			return err
		}
		if err := fn(user); err != nil {
			return err
		}
		out = user
		return u.m.db.saveUser(ctx, s.tx, user)
	})
	return out, err
}

func (u *Users) UpdateProfile(ctx context.Context, userID string, p Profile) (*User, error) {
	if strings.TrimSpace(p.FullName) == "" {
		return nil, fmt.Errorf("full name is required: %w", ErrInvalidInput)
	}
	return u.modify(ctx, userID, func(user *User) error {
		user.FullName = strings.TrimSpace(p.FullName)
		user.Phone = strings.TrimSpace(p.Phone)
		user.Faculty = strings.TrimSpace(p.Faculty)
		return nil
	})
}

// ChangePassword replaces the password after checking the old one.
func (u *Users) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if len(newPassword) < MinPasswordLen {
		return fmt.Errorf("password shorter than %d: %w", MinPasswordLen, ErrInvalidInput)
	}
	hash, err := u.hash(newPassword)
	if err != nil {
		return err
	}
	_, err = u.modify(ctx, userID, func(user *User) error {
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
			return ErrBadCredentials
		}
		user.PasswordHash = hash
		return nil
	})
	return err
}

// ResetPassword sets a generated password and returns it in clear text.
func (u *Users) ResetPassword(ctx context.Context, email string) (string, error) {
	user, err := u.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	temp := "BS" + rand.Text()[:8]
	hash, err := u.hash(temp)
	if err != nil {
		return "", err
	}
	if _, err := u.modify(ctx, user.ID, func(user *User) error {
		user.PasswordHash = hash
		return nil
	}); err != nil {
		return "", err
	}
	return temp, nil
}

// ------------------ favourites ------------------

func (u *Users) AddFavorite(ctx context.Context, userID, bookID string) error {
	if _, err := u.m.Books.Get(ctx, bookID); err != nil {
		return err
	}
	_, err := u.modify(ctx, userID, func(user *User) error {
		if !user.Favorites.Contains(bookID) {
			user.Favorites = append(user.Favorites, bookID)
		}
		return nil
	})
	return err
}

func (u *Users) RemoveFavorite(ctx context.Context, userID, bookID string) error {
	_, err := u.modify(ctx, userID, func(user *User) error {
		kept := IDList{}
		for _, id := range user.Favorites {
			if id != bookID {
				kept = append(kept, id)
			}
		}
		user.Favorites = kept
		return nil
	})
	return err
}

// Favorites returns the user's favourite books that still exist.
func (u *Users) Favorites(ctx context.Context, userID string) ([]Book, error) {
	user, err := u.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := []Book{}
	for _, id := range user.Favorites {
		b, err := u.m.Books.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}

// EnsureAdmin creates an administrator account unless one already exists.
// It reports whether an account was created.
func (u *Users) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	if len(password) < MinPasswordLen {
		return false, fmt.Errorf("admin password shorter than %d: %w", MinPasswordLen, ErrInvalidInput)
	}
	hash, err := u.hash(password)
	if err != nil {
		return false, err
	}
	created := false
	err = u.m.write(ctx, func(s *scope) error {
		admins, err := u.m.db.listUsers(ctx, s.tx, goqu.Ex{"role": string(RoleAdmin)})
		if err != nil {
			return err
		}
		if len(admins) > 0 {
			return nil
		}
		id := u.m.newID()
		err = u.insert(ctx, s, &User{
			ID:           id,
			Email:        normalizeEmail(email),
			PasswordHash: hash,
			FullName:     "Administrator",
			StudentID:    "ADMIN-" + id,
			Role:         RoleAdmin,
			TrustScore:   InitialTrust,
			Active:       true,
			Favorites:    IDList{},
			CreatedAt:    u.m.Now(),
		})
		created = err == nil
		return err
	})
	return created, err
}
