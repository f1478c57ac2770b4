package store

import (
	"context"
	"errors"
	"time"

	"github.com/gocql/gocql"

	"koursa_back_end/internal/database"
	"koursa_back_end/internal/models"
)

var ErrUserNotFound = errors.New("utilisateur introuvable")

type UserStore struct{}

func NewUserStore() *UserStore {
	return &UserStore{}
}

// User lit un utilisateur (notifications litige : e-mails des deux parties)
func (s *UserStore) User(ctx context.Context, userID string) (*models.User, error) {
	session, err := database.GetUsersSession()
	if err != nil {
		return nil, err
	}

	uid, err := gocql.ParseUUID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	u := models.User{ID: userID}
	var updatedAt time.Time

	err = session.Query(`SELECT email, name, phone, role, created_at, updated_at
		FROM users WHERE user_id = ?`, uid).WithContext(ctx).
		Scan(&u.Email, &u.Name, &u.Phone, &u.Role, &u.CreatedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if !updatedAt.IsZero() {
		u.UpdatedAt = &updatedAt
	}
	return &u, nil
}
