package service

import (
	"Shorty-Backend/internal/analytics"
	"Shorty-Backend/internal/auth"
	"Shorty-Backend/internal/domain"
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify mock of repository.Storage
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) CreateUser(ctx context.Context, login, passwordHash string) (*domain.User, error) {
	args := m.Called(ctx, login, passwordHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockStorage) GetUserByLogin(ctx context.Context, login string) (*domain.User, error) {
	args := m.Called(ctx, login)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockStorage) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockStorage) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockStorage) CreateLinkIfAbsent(ctx context.Context, link *domain.Link) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockStorage) GetLinkByCode(ctx context.Context, code string) (*domain.Link, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockStorage) RecordVisit(ctx context.Context, code string, at time.Time) (*domain.Link, error) {
	args := m.Called(ctx, code, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockStorage) UpdateDestination(ctx context.Context, id int64, originalURL string) (*domain.Link, error) {
	args := m.Called(ctx, id, originalURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockStorage) DeleteLinkByID(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStorage) ListLinksByOwner(ctx context.Context, ownerID int64) ([]*domain.Link, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Link), args.Error(1)
}

func (m *MockStorage) DeleteLinksLastUsedBefore(ctx context.Context, threshold time.Time) (int64, error) {
	args := m.Called(ctx, threshold)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) SaveClick(ctx context.Context, click *domain.Click) error {
	args := m.Called(ctx, click)
	return args.Error(0)
}

func (m *MockStorage) GetClicksByDevice(ctx context.Context, linkID int64) (map[string]int64, error) {
	args := m.Called(ctx, linkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *MockStorage) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// staticVerifier accepts a fixed set of tokens.
type staticVerifier map[string]domain.Principal

func (v staticVerifier) VerifyCredential(_ context.Context, token string) (domain.Principal, error) {
	p, ok := v[token]
	if !ok {
		return domain.Principal{}, auth.ErrInvalidToken
	}
	return p, nil
}

type recordingClicks struct {
	mu     sync.Mutex
	clicks []*analytics.ClickData
}

func (r *recordingClicks) SubmitClick(clickData *analytics.ClickData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clicks = append(r.clicks, clickData)
	return nil
}
