package memory

import (
	"Shorty-Backend/internal/domain"
	"Shorty-Backend/internal/repository"
	"context"
	"sort"
	"sync"
	"time"
)

// MemStorage keeps everything in process memory. Every method runs under one mutex.
type MemStorage struct {
	mu sync.RWMutex

	links       map[string]*domain.Link // by short code
	linkCodes   map[int64]string        // link id -> short code
	linkCounter int64

	users        map[int64]*domain.User
	usersByLogin map[string]int64
	userCounter  int64

	clicks       map[int64][]domain.Click // by link id
	clickCounter int64
}

func New() *MemStorage {
	return &MemStorage{
		links:        make(map[string]*domain.Link),
		linkCodes:    make(map[int64]string),
		users:        make(map[int64]*domain.User),
		usersByLogin: make(map[string]int64),
		clicks:       make(map[int64][]domain.Click),
	}
}

// --- User Methods ---

func (s *MemStorage) CreateUser(_ context.Context, login, passwordHash string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByLogin[login]; exists {
		return nil, repository.ErrUserExists
	}

	s.userCounter++
	user := &domain.User{
		ID:           s.userCounter,
		Login:        login,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[user.ID] = user
	s.usersByLogin[login] = user.ID

	u := *user
	return &u, nil
}

func (s *MemStorage) GetUserByLogin(_ context.Context, login string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByLogin[login]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u := *s.users[id]
	return &u, nil
}

func (s *MemStorage) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u := *user
	return &u, nil
}

func (s *MemStorage) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.LastLoginAt = &at
	return nil
}

// --- Link Methods ---

func (s *MemStorage) CreateLinkIfAbsent(_ context.Context, link *domain.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.links[link.ShortCode]; exists {
		return repository.ErrAliasTaken
	}

	s.linkCounter++
	link.ID = s.linkCounter
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	stored := *link
	s.links[link.ShortCode] = &stored
	s.linkCodes[link.ID] = link.ShortCode
	return nil
}

func (s *MemStorage) GetLinkByCode(_ context.Context, code string) (*domain.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[code]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	l := *link
	return &l, nil
}

func (s *MemStorage) RecordVisit(_ context.Context, code string, at time.Time) (*domain.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[code]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	link.ClickCount++
	if link.LastUsedAt == nil || link.LastUsedAt.Before(at) {
		t := at
		link.LastUsedAt = &t
	}
	l := *link
	return &l, nil
}

func (s *MemStorage) UpdateDestination(_ context.Context, id int64, originalURL string) (*domain.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.linkCodes[id]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	link := s.links[code]
	link.OriginalURL = originalURL
	l := *link
	return &l, nil
}

func (s *MemStorage) DeleteLinkByID(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.linkCodes[id]
	if !ok {
		return repository.ErrLinkNotFound
	}
	s.deleteLocked(id, code)
	return nil
}

func (s *MemStorage) ListLinksByOwner(_ context.Context, ownerID int64) ([]*domain.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userLinks := make([]*domain.Link, 0)
	for _, link := range s.links {
		if link.Owner.IsOwnedBy(ownerID) {
			l := *link
			userLinks = append(userLinks, &l)
		}
	}
	sort.Slice(userLinks, func(i, j int) bool {
		return userLinks[i].ID > userLinks[j].ID
	})
	return userLinks, nil
}

func (s *MemStorage) DeleteLinksLastUsedBefore(_ context.Context, threshold time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for code, link := range s.links {
		if link.RetentionClock().Before(threshold) {
			s.deleteLocked(link.ID, code)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemStorage) deleteLocked(id int64, code string) {
	delete(s.links, code)
	delete(s.linkCodes, id)
	delete(s.clicks, id)
}

// --- Analytics Methods ---

func (s *MemStorage) SaveClick(_ context.Context, click *domain.Click) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.linkCodes[click.LinkID]; !ok {
		return repository.ErrLinkNotFound
	}
	s.clickCounter++
	click.ID = s.clickCounter
	s.clicks[click.LinkID] = append(s.clicks[click.LinkID], *click)
	return nil
}

func (s *MemStorage) GetClicksByDevice(_ context.Context, linkID int64) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clicksByDevice := make(map[string]int64)
	for _, click := range s.clicks[linkID] {
		clicksByDevice[click.DeviceType]++
	}
	return clicksByDevice, nil
}

func (s *MemStorage) Ping(_ context.Context) error {
	return nil
}
