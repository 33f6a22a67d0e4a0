package consistency

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gulkily/thywill-sub001/internal/archive"
	"github.com/gulkily/thywill-sub001/internal/config"
	"github.com/gulkily/thywill-sub001/internal/record"
	"github.com/gulkily/thywill-sub001/internal/store"
	"github.com/gulkily/thywill-sub001/internal/testutil"
)

type env struct {
	cfg       config.Config
	store     *store.Store
	writer    *archive.Writer
	validator *Validator
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

	sc := archive.NewScanner(cfg.ArchiveRoot)
	return &env{
		cfg:       cfg,
		store:     st,
		writer:    archive.NewWriter(cfg),
		validator: NewValidator(st, sc, testutil.Logger()),
	}
}

// anchorUser archives a user record and inserts the matching row pointing at
// the written block.
func anchorUser(t *testing.T, e *env, username string, created time.Time) {
	t.Helper()
	rec := &record.Record{Domain: record.DomainUser, User: &record.User{
		Username: username, Created: created,
	}}
	loc, err := e.writer.Append(rec)
	require.NoError(t, err)

	ctx := context.Background()
	tx, err := e.store.Begin(ctx)
	require.NoError(t, err)
	_, _, err = tx.InsertUser(ctx, &store.UserRow{
		NaturalKey: username, Username: username, Created: created, Loc: loc,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
}

func TestValidate_CleanIndexHasNoFindings(t *testing.T) {
	e := newEnv(t)
	clock := testutil.NewClock(time.Time{})
	anchorUser(t, e, "alice", clock.Next())
	anchorUser(t, e, "bob", clock.Next())

	findings, err := e.validator.Validate(context.Background(), record.DomainUser)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestValidate_ReportsDriftedField(t *testing.T) {
	e := newEnv(t)
	anchorUser(t, e, "alice", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := e.store.DB().ExecContext(ctx,
		"UPDATE users SET email = 'wrong@example.com' WHERE natural_key = 'alice'")
	require.NoError(t, err)

	findings, err := e.validator.Validate(ctx, record.DomainUser)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, record.DomainUser, findings[0].Domain)
	assert.Equal(t, "alice", findings[0].NaturalKey)
	assert.Equal(t, "Email", findings[0].Field)
	assert.Equal(t, "", findings[0].ArchiveValue)
	assert.Equal(t, "wrong@example.com", findings[0].DatabaseValue)
}

func TestValidate_ReportsUnreadableLocation(t *testing.T) {
	e := newEnv(t)
	anchorUser(t, e, "alice", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, os.Remove(filepath.Join(e.cfg.ArchiveRoot, "users", "2024-01.txt")))

	findings, err := e.validator.Validate(context.Background(), record.DomainUser)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "archive", findings[0].Field)
	assert.Equal(t, "<unreadable>", findings[0].ArchiveValue)
}

func TestValidate_ReportsMissingLocation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tx, err := e.store.Begin(ctx)
	require.NoError(t, err)
	_, _, err = tx.InsertUser(ctx, &store.UserRow{
		NaturalKey: "alice", Username: "alice",
		Created: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	findings, err := e.validator.Validate(ctx, record.DomainUser)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "archive", findings[0].Field)
	assert.Equal(t, "<no location>", findings[0].DatabaseValue)
}

func TestDiff_ComparesTrackedFields(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	archived := &record.Record{Domain: record.DomainUser, User: &record.User{
		Username: "alice", Email: "alice@example.com", Created: at,
	}}
	stored := &record.Record{Domain: record.DomainUser, User: &record.User{
		Username: "alice", Email: "old@example.com", Created: at, Admin: true,
	}}

	findings := Diff(archived, stored)
	require.Len(t, findings, 2)
	byField := map[string]Finding{}
	for _, f := range findings {
		byField[f.Field] = f
	}
	assert.Equal(t, "alice@example.com", byField["Email"].ArchiveValue)
	assert.Equal(t, "old@example.com", byField["Email"].DatabaseValue)
	assert.Equal(t, "false", byField["Admin"].ArchiveValue)
	assert.Equal(t, "true", byField["Admin"].DatabaseValue)
}

func TestDiff_IdenticalRecordsProduceNothing(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &record.Record{Domain: record.DomainPrayer, Prayer: &record.Prayer{
		ID: "p-1-alice-abcd1234", Author: "alice", Text: "for peace", Created: at,
		Flags: []string{"reviewed"},
	}}
	other := &record.Record{Domain: record.DomainPrayer, Prayer: &record.Prayer{
		ID: "p-1-alice-abcd1234", Author: "alice", Text: "for peace", Created: at,
		Flags: []string{"reviewed"},
	}}
	assert.Empty(t, Diff(rec, other))
}
