package app

import (
	"testing"
	"time"

	"github.com/ZUXXSU/chathubserver/internal/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func TestModule_GraphResolves(t *testing.T) {
	cfg := config.Config{
		Port:            "0",
		Mode:            config.ModeDevelopment,
		DatabaseDSN:     "postgres://localhost/chat",
		JWTSecret:       "secret",
		TokenTTL:        time.Hour,
		UploadDir:       t.TempDir(),
		PushConcurrency: 1,
		LogLevel:        "debug",
	}

	require.NoError(t, fx.ValidateApp(fx.NopLogger, components(cfg)))
}
