package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/optixflow/internal/remote"
)

var (
	ErrNotFound     = errors.New("storage: not found")
	ErrConflict     = errors.New("storage: already exists")
	ErrForbidden    = errors.New("storage: row owned by another user")
	ErrUnknownField = errors.New("storage: unknown column")
)

// AccountRepository holds identities and their sessions.
type AccountRepository interface {
	CreateUser(ctx context.Context, in User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)

	CreateSession(ctx context.Context, in Session) error
	GetSession(ctx context.Context, token string) (Session, error)
	UpdateSessionExpiry(ctx context.Context, token string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
}

var (
	_ remote.Backend    = (*SQLiteRepository)(nil)
	_ AccountRepository = (*SQLiteRepository)(nil)
)
