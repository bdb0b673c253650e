//go:build integration

package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ibarani/fitforge"
	"github.com/ibarani/fitforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: FITFORGE_TEST_DSN=postgres://... go test -tags integration ./internal/storage/
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("FITFORGE_TEST_DSN")
	if dsn == "" {
		t.Skip("FITFORGE_TEST_DSN not set")
	}
	require.NoError(t, RunMigrations(dsn, fitforge.MigrationsFS, "migrations"))
	db, err := New(context.Background(), dsn, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

// TestDBGateway runs the gateway contract against Postgres: upsert, prefix
// order with and without a limit, and the inclusive gsi1 range.
func TestDBGateway(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	user := "it-" + uuid.NewString()
	pk := UserPK(user)

	_, err := db.Get(ctx, pk, SKProfile)
	assert.ErrorIs(t, err, ErrNotFound)

	for _, date := range []string{"2024-01-02", "2024-01-01", "2024-01-03"} {
		_, err := PutWorkout(ctx, db, &models.WorkoutSession{UserID: user, TemplateKey: "A", Date: date})
		require.NoError(t, err)
	}
	require.NoError(t, PutJSON(ctx, db, Item{PK: pk, SK: SKProfile}, models.UserProfile{ExperienceLevel: "novice"}))
	require.NoError(t, PutJSON(ctx, db, Item{PK: pk, SK: SKProfile}, models.UserProfile{ExperienceLevel: "advanced"}))

	p, err := GetProfile(ctx, db, user)
	require.NoError(t, err)
	assert.Equal(t, "advanced", p.ExperienceLevel)

	all, err := db.QueryByPrefix(ctx, pk, PrefixWorkout, false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"WORKOUT#2024-01-01#A", "WORKOUT#2024-01-02#A", "WORKOUT#2024-01-03#A",
	}, sks(all))

	latest, err := db.QueryByPrefix(ctx, pk, PrefixWorkout, true, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"WORKOUT#2024-01-03#A"}, sks(latest))

	ranged, err := WorkoutsBetween(ctx, db, user, "2024-01-02", "2024-01-03")
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	_, err = db.QueryRange(ctx, "gsi9", pk, "a", "z")
	assert.Error(t, err)
}

// TestDBCallTimeout verifies that each call is bounded by the gateway timeout
// and fails as a persistence error.
func TestDBCallTimeout(t *testing.T) {
	db := openTestDB(t)
	slow := &DB{Pool: db.Pool, timeout: time.Nanosecond}

	_, err := slow.Get(context.Background(), UserPK("u1"), SKProfile)
	require.Error(t, err)
	assert.True(t, models.IsPersistence(err), "err = %v", err)
}
