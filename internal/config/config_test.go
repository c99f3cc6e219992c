package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)

	// Given only the required secrets
	t.Setenv("DB_DSN", "postgres://localhost/chat")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("NODE_ENV", "development")

	// When
	cfg, err := Load()

	// Then
	req.NoError(err)
	req.Equal(":3000", cfg.Addr())
	req.True(cfg.Development())
	req.Equal(5*time.Second, cfg.StoreTimeout)
	req.Equal(8, cfg.PushConcurrency)
	req.Equal([]string{"http://localhost:5173", "http://localhost:4173"}, cfg.Origins())
}

func TestLoad_MissingSecrets(t *testing.T) {
	req := require.New(t)

	t.Setenv("DB_DSN", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()

	req.Error(err)
	req.Contains(err.Error(), "DB_DSN")
	req.Contains(err.Error(), "JWT_SECRET")
}

func TestValidate_BadMode(t *testing.T) {
	cfg := Config{DatabaseDSN: "x", JWTSecret: "y", Mode: "STAGING", PushConcurrency: 1, TokenTTL: time.Hour}
	require.ErrorContains(t, cfg.Validate(), "NODE_ENV")
}

func TestOrigins_TrimsSlashesAndBlanks(t *testing.T) {
	cfg := Config{ClientOrigins: " https://a.example/ ,, *"}
	require.Equal(t, []string{"https://a.example", "*"}, cfg.Origins())
}
