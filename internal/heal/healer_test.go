package heal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gulkily/thywill-sub001/internal/archive"
	"github.com/gulkily/thywill-sub001/internal/config"
	"github.com/gulkily/thywill-sub001/internal/consistency"
	"github.com/gulkily/thywill-sub001/internal/record"
	"github.com/gulkily/thywill-sub001/internal/store"
	"github.com/gulkily/thywill-sub001/internal/testutil"
)

type env struct {
	cfg     config.Config
	store   *store.Store
	writer  *archive.Writer
	scanner *archive.Scanner
	healer  *Healer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := config.Default()
	cfg.ArchiveRoot = t.TempDir()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	cfg.WriteBackoff = time.Millisecond

	st, err := store.Open(cfg.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	w := archive.NewWriter(cfg)
	sc := archive.NewScanner(cfg.ArchiveRoot)
	return &env{
		cfg:     cfg,
		store:   st,
		writer:  w,
		scanner: sc,
		healer:  New(st, w, sc, cfg, testutil.Logger()),
	}
}

// insertUnanchored puts a user row straight into the database with no
// archive location, the situation healing exists for.
func insertUnanchored(t *testing.T, e *env, username string, created time.Time) {
	t.Helper()
	ctx := context.Background()
	tx, err := e.store.Begin(ctx)
	require.NoError(t, err)
	_, inserted, err := tx.InsertUser(ctx, &store.UserRow{
		NaturalKey: username,
		Username:   username,
		Created:    created,
	})
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, tx.Commit())
}

func TestHeal_AppendsBlocksForUnanchoredRows(t *testing.T) {
	e := newEnv(t)
	clock := testutil.NewClock(time.Time{})
	insertUnanchored(t, e, "alice", clock.Next())
	insertUnanchored(t, e, "bob", clock.Next())
	ctx := context.Background()

	res, err := e.healer.Heal(ctx, record.DomainUser)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Healed)
	assert.Zero(t, res.Anchored)
	assert.Zero(t, res.Failed)

	entries, err := e.store.ReadEntries(ctx, record.DomainUser)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		require.False(t, entry.Loc.IsZero(), "location for %s", entry.Key)
		rec, err := e.scanner.ReadAt(entry.Loc)
		require.NoError(t, err)
		assert.Equal(t, entry.Key, rec.NaturalKey())
	}
}

func TestHeal_SecondPassTouchesNothing(t *testing.T) {
	e := newEnv(t)
	insertUnanchored(t, e, "alice", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := e.healer.Heal(ctx, record.DomainUser)
	require.NoError(t, err)

	shard := filepath.Join(e.cfg.ArchiveRoot, "users", "2024-01.txt")
	before, err := os.Stat(shard)
	require.NoError(t, err)

	res, err := e.healer.Heal(ctx, record.DomainUser)
	require.NoError(t, err)
	assert.Zero(t, res.Healed)
	assert.Equal(t, 1, res.Anchored)

	after, err := os.Stat(shard)
	require.NoError(t, err)
	assert.Equal(t, before.Size(), after.Size(), "shard must not grow on a clean pass")
}

func TestHeal_RestoresDeletedShard(t *testing.T) {
	e := newEnv(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	insertUnanchored(t, e, "alice", created)
	ctx := context.Background()

	_, err := e.healer.Heal(ctx, record.DomainUser)
	require.NoError(t, err)

	shard := filepath.Join(e.cfg.ArchiveRoot, "users", "2024-01.txt")
	require.NoError(t, os.Remove(shard))

	res, err := e.healer.Heal(ctx, record.DomainUser)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Healed, "dangling location must be re-anchored")

	entries, err := e.store.ReadEntries(ctx, record.DomainUser)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	rec, err := e.scanner.ReadAt(entries[0].Loc)
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.User.Username)
	assert.True(t, rec.User.Created.Equal(created), "created = %v, want %v", rec.User.Created, created)
}

func TestHealAll_CoversEveryDomain(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	clock := testutil.NewClock(time.Time{})

	tx, err := e.store.Begin(ctx)
	require.NoError(t, err)
	userID, _, err := tx.InsertUser(ctx, &store.UserRow{
		NaturalKey: "alice", Username: "alice", Created: clock.Next(),
	})
	require.NoError(t, err)
	createdAt := clock.Next()
	prayerKey := record.NewPrayerID(createdAt, "alice", "for rain")
	prayerID, _, err := tx.InsertPrayer(ctx, &store.PrayerRow{
		NaturalKey: prayerKey, AuthorID: userID, Text: "for rain", Created: createdAt,
	})
	require.NoError(t, err)
	markedAt := clock.Next()
	markKey := fmt.Sprintf("%s/alice/%d", prayerKey, markedAt.UTC().Unix())
	_, _, err = tx.InsertMark(ctx, &store.MarkRow{
		NaturalKey: markKey,
		PrayerID:   prayerID, UserID: userID, MarkedAt: markedAt,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	results, err := e.healer.HealAll(ctx)
	require.NoError(t, err)

	healed := 0
	for _, res := range results {
		healed += res.Healed
		assert.Zero(t, res.Failed, "failed for %s", res.Domain)
	}
	assert.Equal(t, 3, healed)

	for _, domain := range record.Domains {
		n, err := e.store.CountUnanchored(ctx, domain)
		require.NoError(t, err)
		assert.Zero(t, n, "unanchored rows for %s", domain)
	}

	// Freshly healed blocks must verify byte-for-byte against the rows
	// they were synthesized from.
	findings, err := consistency.NewValidator(e.store, e.scanner, testutil.Logger()).ValidateAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, findings)
}
