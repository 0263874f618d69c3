package repository

import (
	"Shorty-Backend/internal/domain"
	"context"
	"errors"
	"time"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrAliasTaken   = errors.New("alias already taken")
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")

	// ErrStorageUnavailable wraps transient infrastructure failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

type Storage interface {
	// User methods
	CreateUser(ctx context.Context, login, passwordHash string) (*domain.User, error)
	GetUserByLogin(ctx context.Context, login string) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error

	// Link methods

	// CreateLinkIfAbsent inserts link unless its short code is already in use,
	// in which case ErrAliasTaken is returned. The check and the insert are one statement.
	CreateLinkIfAbsent(ctx context.Context, link *domain.Link) error
	GetLinkByCode(ctx context.Context, code string) (*domain.Link, error)
	// RecordVisit increments click_count and advances last_used_at to at in one
	// step and returns the updated record.
	RecordVisit(ctx context.Context, code string, at time.Time) (*domain.Link, error)
	UpdateDestination(ctx context.Context, id int64, originalURL string) (*domain.Link, error)
	DeleteLinkByID(ctx context.Context, id int64) error
	ListLinksByOwner(ctx context.Context, ownerID int64) ([]*domain.Link, error)
	// DeleteLinksLastUsedBefore removes links whose last_used_at (created_at for
	// links never visited) is older than threshold.
	DeleteLinksLastUsedBefore(ctx context.Context, threshold time.Time) (int64, error)

	// Analytics methods
	SaveClick(ctx context.Context, click *domain.Click) error
	GetClicksByDevice(ctx context.Context, linkID int64) (map[string]int64, error)

	Ping(ctx context.Context) error
}
