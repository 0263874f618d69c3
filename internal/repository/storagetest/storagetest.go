// Package storagetest holds the behaviour every repository.Storage
// implementation must share. Each implementation runs Run from its own tests.
package storagetest

import (
	"Shorty-Backend/internal/domain"
	"Shorty-Backend/internal/repository"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty storage for one subtest.
type Factory func(t *testing.T) repository.Storage

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return base.Add(d) }

func ptr(t time.Time) *time.Time { return &t }

func Run(t *testing.T, newStorage Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStorage(t)) })
	t.Run("CreateLinkIfAbsent", func(t *testing.T) { testCreateLink(t, newStorage(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStorage(t)) })
	t.Run("RecordVisit", func(t *testing.T) { testRecordVisit(t, newStorage(t)) })
	t.Run("UpdateAndDelete", func(t *testing.T) { testUpdateAndDelete(t, newStorage(t)) })
	t.Run("ListLinksByOwner", func(t *testing.T) { testListByOwner(t, newStorage(t)) })
	t.Run("DeleteLinksLastUsedBefore", func(t *testing.T) { testPurge(t, newStorage(t)) })
	t.Run("Clicks", func(t *testing.T) { testClicks(t, newStorage(t)) })
	t.Run("Ping", func(t *testing.T) { assert.NoError(t, newStorage(t).Ping(context.Background())) })
}

func testUsers(t *testing.T, s repository.Storage) {
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)

	_, err = s.CreateUser(ctx, "alice", "other-hash")
	assert.ErrorIs(t, err, repository.ErrUserExists)

	byLogin, err := s.GetUserByLogin(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byLogin.ID)
	assert.Equal(t, "hash", byLogin.PasswordHash)

	byID, err := s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Login)
	assert.Nil(t, byID.LastLoginAt)

	require.NoError(t, s.TouchLastLogin(ctx, user.ID, base))
	byID, err = s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, byID.LastLoginAt)
	assert.True(t, byID.LastLoginAt.Equal(base))

	_, err = s.GetUserByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	_, err = s.GetUserByID(ctx, user.ID+100)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	assert.ErrorIs(t, s.TouchLastLogin(ctx, user.ID+100, base), repository.ErrUserNotFound)
}

func testCreateLink(t *testing.T, s repository.Storage) {
	ctx := context.Background()
	user, err := s.CreateUser(ctx, "owner", "hash")
	require.NoError(t, err)

	owned := &domain.Link{OriginalURL: "https://a.example", ShortCode: "owned", CreatedAt: base, Owner: domain.OwnedBy(user.ID)}
	require.NoError(t, s.CreateLinkIfAbsent(ctx, owned))
	assert.NotZero(t, owned.ID)

	anon := &domain.Link{OriginalURL: "https://b.example", ShortCode: "anon", CreatedAt: base, ExpiresAt: ptr(at(time.Hour))}
	require.NoError(t, s.CreateLinkIfAbsent(ctx, anon))

	dup := &domain.Link{OriginalURL: "https://c.example", ShortCode: "owned", CreatedAt: base}
	assert.ErrorIs(t, s.CreateLinkIfAbsent(ctx, dup), repository.ErrAliasTaken)

	got, err := s.GetLinkByCode(ctx, "owned")
	require.NoError(t, err)
	assert.Equal(t, "https://a.example", got.OriginalURL)
	assert.True(t, got.Owner.IsOwnedBy(user.ID))
	assert.Zero(t, got.ClickCount)
	assert.Nil(t, got.LastUsedAt)
	assert.True(t, got.CreatedAt.Equal(base))

	got, err = s.GetLinkByCode(ctx, "anon")
	require.NoError(t, err)
	_, hasOwner := got.Owner.UserID()
	assert.False(t, hasOwner)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(at(time.Hour)))

	_, err = s.GetLinkByCode(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
}

func testConcurrentCreate(t *testing.T, s repository.Storage) {
	ctx := context.Background()
	const workers = 8

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		ok     int
		taken  int
		others []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.CreateLinkIfAbsent(ctx, &domain.Link{
				OriginalURL: fmt.Sprintf("https://%d.example", i),
				ShortCode:   "race",
				CreatedAt:   base,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, repository.ErrAliasTaken):
				taken++
			default:
				others = append(others, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, taken)
}

func testRecordVisit(t *testing.T, s repository.Storage) {
	ctx := context.Background()
	require.NoError(t, s.CreateLinkIfAbsent(ctx, &domain.Link{OriginalURL: "https://a.example", ShortCode: "visit", CreatedAt: base}))

	link, err := s.RecordVisit(ctx, "visit", at(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), link.ClickCount)
	require.NotNil(t, link.LastUsedAt)
	assert.True(t, link.LastUsedAt.Equal(at(time.Minute)))

	link, err = s.RecordVisit(ctx, "visit", at(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), link.ClickCount)
	assert.True(t, link.LastUsedAt.Equal(at(2*time.Minute)))

	// более ранний момент не сдвигает last_used_at назад, но клик считается
	link, err = s.RecordVisit(ctx, "visit", at(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(3), link.ClickCount)
	assert.True(t, link.LastUsedAt.Equal(at(2*time.Minute)))

	_, err = s.RecordVisit(ctx, "missing", base)
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)

	const visits = 20
	var wg sync.WaitGroup
	for i := 0; i < visits; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordVisit(ctx, "visit", at(time.Hour))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	link, err = s.GetLinkByCode(ctx, "visit")
	require.NoError(t, err)
	assert.Equal(t, int64(3+visits), link.ClickCount)
}

func testUpdateAndDelete(t *testing.T, s repository.Storage) {
	ctx := context.Background()
	link := &domain.Link{OriginalURL: "https://old.example", ShortCode: "upd", CreatedAt: base}
	require.NoError(t, s.CreateLinkIfAbsent(ctx, link))
	require.NoError(t, s.SaveClick(ctx, &domain.Click{LinkID: link.ID, DeviceType: "desktop", ClickedAt: base}))

	updated, err := s.UpdateDestination(ctx, link.ID, "https://new.example")
	require.NoError(t, err)
	assert.Equal(t, "https://new.example", updated.OriginalURL)
	assert.Equal(t, "upd", updated.ShortCode)

	_, err = s.UpdateDestination(ctx, link.ID+100, "https://x.example")
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)

	require.NoError(t, s.DeleteLinkByID(ctx, link.ID))
	_, err = s.GetLinkByCode(ctx, "upd")
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)

	byDevice, err := s.GetClicksByDevice(ctx, link.ID)
	require.NoError(t, err)
	assert.Empty(t, byDevice)

	assert.ErrorIs(t, s.DeleteLinkByID(ctx, link.ID), repository.ErrLinkNotFound)

	// код снова свободен после удаления
	assert.NoError(t, s.CreateLinkIfAbsent(ctx, &domain.Link{OriginalURL: "https://again.example", ShortCode: "upd", CreatedAt: base}))
}

func testListByOwner(t *testing.T, s repository.Storage) {
	ctx := context.Background()
	alice, err := s.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "bob", "hash")
	require.NoError(t, err)

	for i, l := range []*domain.Link{
		{ShortCode: "a1", Owner: domain.OwnedBy(alice.ID)},
		{ShortCode: "b1", Owner: domain.OwnedBy(bob.ID)},
		{ShortCode: "a2", Owner: domain.OwnedBy(alice.ID)},
		{ShortCode: "n1"},
	} {
		l.OriginalURL = "https://" + l.ShortCode + ".example"
		l.CreatedAt = at(time.Duration(i) * time.Minute)
		require.NoError(t, s.CreateLinkIfAbsent(ctx, l))
	}

	links, err := s.ListLinksByOwner(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "a2", links[0].ShortCode)
	assert.Equal(t, "a1", links[1].ShortCode)

	links, err = s.ListLinksByOwner(ctx, bob.ID+100)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func testPurge(t *testing.T, s repository.Storage) {
	ctx := context.Background()
	day := 24 * time.Hour

	links := map[string]*domain.Link{
		"stale":     {CreatedAt: at(-30 * day), LastUsedAt: ptr(at(-8 * day))},
		"recent":    {CreatedAt: at(-30 * day), LastUsedAt: ptr(at(-6 * day))},
		"never-old": {CreatedAt: at(-10 * day)},
		"never-new": {CreatedAt: at(-day)},
	}
	for code, l := range links {
		l.ShortCode = code
		l.OriginalURL = "https://" + code + ".example"
		require.NoError(t, s.CreateLinkIfAbsent(ctx, l))
	}
	require.NoError(t, s.SaveClick(ctx, &domain.Click{LinkID: links["stale"].ID, DeviceType: "mobile", ClickedAt: at(-8 * day)}))
	require.NoError(t, s.SaveClick(ctx, &domain.Click{LinkID: links["recent"].ID, DeviceType: "desktop", ClickedAt: at(-6 * day)}))

	deleted, err := s.DeleteLinksLastUsedBefore(ctx, at(-7*day))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	for code, wantExists := range map[string]bool{"stale": false, "recent": true, "never-old": false, "never-new": true} {
		_, err := s.GetLinkByCode(ctx, code)
		if wantExists {
			assert.NoError(t, err, code)
		} else {
			assert.ErrorIs(t, err, repository.ErrLinkNotFound, code)
		}
	}

	byDevice, err := s.GetClicksByDevice(ctx, links["stale"].ID)
	require.NoError(t, err)
	assert.Empty(t, byDevice)

	byDevice, err = s.GetClicksByDevice(ctx, links["recent"].ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"desktop": 1}, byDevice)

	// поздний клик из очереди аналитики не должен оставить сироту
	err = s.SaveClick(ctx, &domain.Click{LinkID: links["stale"].ID, DeviceType: "mobile", ClickedAt: at(0)})
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	byDevice, err = s.GetClicksByDevice(ctx, links["stale"].ID)
	require.NoError(t, err)
	assert.Empty(t, byDevice)

	deleted, err = s.DeleteLinksLastUsedBefore(ctx, at(-7*day))
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func testClicks(t *testing.T, s repository.Storage) {
	ctx := context.Background()
	link := &domain.Link{OriginalURL: "https://a.example", ShortCode: "clicks", CreatedAt: base}
	require.NoError(t, s.CreateLinkIfAbsent(ctx, link))

	ref := "https://ref.example"
	for _, device := range []string{"mobile", "mobile", "desktop", "bot"} {
		require.NoError(t, s.SaveClick(ctx, &domain.Click{
			LinkID:     link.ID,
			DeviceType: device,
			Browser:    "Chrome",
			OS:         "Android",
			Referer:    &ref,
			ClickedAt:  base,
		}))
	}

	byDevice, err := s.GetClicksByDevice(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"mobile": 2, "desktop": 1, "bot": 1}, byDevice)
}
