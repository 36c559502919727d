package main

import (
	"context"
	"path/filepath"
	"testing"

	"pharmacy/internal/config"
	"pharmacy/internal/database"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"
	"pharmacy/pkg/rabbitmq"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "seed", "events"})
}

func TestSetupLogging(t *testing.T) {
	assert.NoError(t, setupLogging("debug"))
	assert.NoError(t, setupLogging("WARN"))
	assert.ErrorContains(t, setupLogging("loud"), "invalid log level")
}

func TestSeedCommand_SqliteFile(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "pharmacy.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_DSN", dsn)
	t.Setenv("JWT_SECRET", "test_jwt_secret")

	root := newRootCmd()
	root.SetArgs([]string{"seed", "--admin-email", "root@pharmacy.test", "--admin-password", "Secret123!"})
	require.NoError(t, root.Execute())

	// a second run keeps existing rows
	root = newRootCmd()
	root.SetArgs([]string{"seed", "--admin-email", "root@pharmacy.test", "--admin-password", "Secret123!"})
	require.NoError(t, root.Execute())

	db, err := database.Open(&config.Config{DBDriver: "sqlite", DatabaseDSN: dsn})
	require.NoError(t, err)
	store := repositories.NewStore(db)

	admin, err := store.Users.GetByEmail(context.Background(), "root@pharmacy.test")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, models.RoleAdmin, admin.Role)

	cities, err := store.Cities.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, cities, 4)
}

func TestSeedCommand_NeedsPassword(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_DSN", filepath.Join(t.TempDir(), "pharmacy.db"))
	t.Setenv("JWT_SECRET", "test_jwt_secret")
	t.Setenv("ADMIN_PASSWORD", "")

	root := newRootCmd()
	root.SetArgs([]string{"seed"})
	assert.ErrorContains(t, root.Execute(), "admin password is required")
}

func TestMigrateCommand_NeedsSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	root := newRootCmd()
	root.SetArgs([]string{"migrate"})
	assert.ErrorContains(t, root.Execute(), "JWT_SECRET")
}

func TestEventsCommand_NeedsBroker(t *testing.T) {
	t.Setenv("JWT_SECRET", "test_jwt_secret")
	t.Setenv("RABBITMQ_URL", "")

	root := newRootCmd()
	root.SetArgs([]string{"events"})
	assert.ErrorContains(t, root.Execute(), "RABBITMQ_URL")
}

func TestLogEvent(t *testing.T) {
	assert.NoError(t, logEvent(rabbitmq.Event{Type: rabbitmq.KeyOrderCreated, Data: map[string]string{"orderId": "o-1"}}))
}
