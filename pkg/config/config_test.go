package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"calendarservice/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CLIENT_ID", "client")
	t.Setenv("CLIENT_SECRET", "secret")
	t.Setenv("REDIRECT_URI", "http://localhost:3000/oauth2callback")

	cfg, err := config.LoadConfigFrom(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "client", cfg.ClientID)
	require.Equal(t, "3000", cfg.Port)
	require.Equal(t, ":3000", cfg.Addr())
	require.Equal(t, "postgres", cfg.DBDriver)
	require.Equal(t, "primary", cfg.CalendarID)
	require.True(t, cfg.IsDev())
	require.False(t, cfg.ResolveIdentity)
}

func TestLoadConfigFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	content := "CLIENT_ID=file-client\nDB_DRIVER=sqlite\nRESOLVE_IDENTITY=true\nPORT=8080\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600))
	t.Setenv("PORT", "9090")

	cfg, err := config.LoadConfigFrom(dir)
	require.NoError(t, err)

	require.Equal(t, "file-client", cfg.ClientID)
	require.Equal(t, "sqlite", cfg.DBDriver)
	require.True(t, cfg.ResolveIdentity)
	require.Equal(t, "9090", cfg.Port, "environment overrides the .env file")
}

func TestValidate(t *testing.T) {
	cfg := config.Config{DBDriver: "sqlite", SQLitePath: "x.db"}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "CLIENT_ID")
	require.Contains(t, err.Error(), "REDIRECT_URI")

	cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL = "id", "secret", "http://localhost/cb"
	require.ErrorContains(t, cfg.Validate(), "DEFAULT_IDENTITY")

	cfg.ResolveIdentity = true
	require.NoError(t, cfg.Validate())

	cfg.ResolveIdentity, cfg.DefaultIdentity = false, "sherin@example.com"
	require.NoError(t, cfg.Validate())

	cfg.DBDriver = "mysql"
	require.ErrorContains(t, cfg.Validate(), "unsupported DB_DRIVER")
}

func TestValidateRequiresAnIdentitySource(t *testing.T) {
	t.Setenv("CLIENT_ID", "client")
	t.Setenv("CLIENT_SECRET", "secret")
	t.Setenv("REDIRECT_URI", "http://localhost:3000/oauth2callback")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg, err := config.LoadConfigFrom(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, cfg.DefaultIdentity)
	require.ErrorContains(t, cfg.Validate(), "DEFAULT_IDENTITY")

	t.Setenv("DEFAULT_IDENTITY", "sherin@example.com")
	cfg, err = config.LoadConfigFrom(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func TestPostgresDSN(t *testing.T) {
	cfg := config.Config{DBHost: "db", DBUser: "u", DBName: "cal", DBPort: "5432", DBPassword: "p", DBSSLMode: "disable"}
	require.Equal(t, "host=db user=u dbname=cal port=5432 password=p sslmode=disable", cfg.PostgresDSN())
}
