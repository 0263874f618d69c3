package service

import (
	"Shorty-Backend/internal/domain"
	"Shorty-Backend/internal/repository"
	"Shorty-Backend/internal/repository/memory"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type linkFixture struct {
	storage *memory.MemStorage
	links   *LinkService
	guard   *OwnershipGuard
}

func newLinkFixture(t *testing.T) *linkFixture {
	t.Helper()
	ctx := context.Background()
	storage := memory.New()

	verifier := staticVerifier{
		"token-alice": {UserID: 1, Login: "alice"},
		"token-bob":   {UserID: 2, Login: "bob"},
	}
	guard := NewOwnershipGuard(verifier, storage, zap.NewNop())

	for _, l := range []*domain.Link{
		{OriginalURL: "https://alice.example", ShortCode: "alice1", Owner: domain.OwnedBy(1)},
		{OriginalURL: "https://alice2.example", ShortCode: "alice2", Owner: domain.OwnedBy(1)},
		{OriginalURL: "https://bob.example", ShortCode: "bob1", Owner: domain.OwnedBy(2)},
		{OriginalURL: "https://anon.example", ShortCode: "anon1", Owner: domain.NoOwner()},
	} {
		require.NoError(t, storage.CreateLinkIfAbsent(ctx, l))
	}

	return &linkFixture{
		storage: storage,
		links:   NewLinkService(guard, storage, zap.NewNop()),
		guard:   guard,
	}
}

func TestOwnershipGuard_Principal(t *testing.T) {
	f := newLinkFixture(t)
	ctx := context.Background()

	_, err := f.guard.Principal(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.guard.Principal(ctx, "forged")
	assert.ErrorIs(t, err, ErrUnauthorized)

	p, err := f.guard.Principal(ctx, "token-bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.UserID)
}

func TestOwnershipGuard_SameDenialRegardlessOfExistence(t *testing.T) {
	f := newLinkFixture(t)
	ctx := context.Background()

	for _, code := range []string{"alice1", "anon1", "does-not-exist"} {
		t.Run(code, func(t *testing.T) {
			_, err := f.links.Stats(ctx, "token-bob", code)
			assert.ErrorIs(t, err, ErrForbidden)
			assert.Equal(t, ErrForbidden.Error(), err.Error())

			_, err = f.links.UpdateDestination(ctx, "token-bob", code, "https://evil.example")
			assert.ErrorIs(t, err, ErrForbidden)
			assert.Equal(t, ErrForbidden.Error(), err.Error())

			err = f.links.Delete(ctx, "token-bob", code)
			assert.ErrorIs(t, err, ErrForbidden)
			assert.Equal(t, ErrForbidden.Error(), err.Error())
		})
	}

	link, err := f.storage.GetLinkByCode(ctx, "alice1")
	require.NoError(t, err)
	assert.Equal(t, "https://alice.example", link.OriginalURL)
}

func TestOwnershipGuard_AnonymousCaller(t *testing.T) {
	f := newLinkFixture(t)
	ctx := context.Background()

	for _, code := range []string{"alice1", "does-not-exist"} {
		_, err := f.links.Stats(ctx, "", code)
		assert.ErrorIs(t, err, ErrUnauthorized)
		err = f.links.Delete(ctx, "", code)
		assert.ErrorIs(t, err, ErrUnauthorized)
	}
}

func TestLinkService_OwnerOperations(t *testing.T) {
	f := newLinkFixture(t)
	ctx := context.Background()

	t.Run("stats", func(t *testing.T) {
		_, err := f.storage.RecordVisit(ctx, "alice1", time.Now().UTC())
		require.NoError(t, err)
		link, err := f.storage.GetLinkByCode(ctx, "alice1")
		require.NoError(t, err)
		require.NoError(t, f.storage.SaveClick(ctx, &domain.Click{LinkID: link.ID, DeviceType: "mobile", ClickedAt: time.Now().UTC()}))

		stats, err := f.links.Stats(ctx, "token-alice", "alice1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Link.ClickCount)
		assert.Equal(t, map[string]int64{"mobile": 1}, stats.ClicksByDevice)
	})

	t.Run("list mine", func(t *testing.T) {
		links, err := f.links.ListMine(ctx, "token-alice")
		require.NoError(t, err)
		require.Len(t, links, 2)
		assert.Equal(t, "alice2", links[0].ShortCode)
		assert.Equal(t, "alice1", links[1].ShortCode)

		_, err = f.links.ListMine(ctx, "")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("update", func(t *testing.T) {
		_, err := f.links.UpdateDestination(ctx, "token-alice", "alice1", "")
		assert.ErrorIs(t, err, ErrInvalidURL)

		updated, err := f.links.UpdateDestination(ctx, "token-alice", "alice1", "https://new.example")
		require.NoError(t, err)
		assert.Equal(t, "https://new.example", updated.OriginalURL)
		assert.Equal(t, "alice1", updated.ShortCode)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, f.links.Delete(ctx, "token-alice", "alice2"))

		_, err := f.storage.GetLinkByCode(ctx, "alice2")
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)

		// после удаления ссылка для владельца неотличима от чужой
		err = f.links.Delete(ctx, "token-alice", "alice2")
		assert.ErrorIs(t, err, ErrForbidden)
	})
}
