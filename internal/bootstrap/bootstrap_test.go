package bootstrap

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"invoice-agent/internal/config"
	"invoice-agent/internal/credentials"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	cfg := config.Defaults()
	cfg.LogLevel = "warn"
	var buf bytes.Buffer
	logger := NewLogger(cfg, &buf, true)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
}

func TestOAuth(t *testing.T) {
	cfg := config.Defaults()
	assert.Nil(t, OAuth(cfg))

	cfg.QuickBooks.ClientID = "id"
	cfg.QuickBooks.ClientSecret = "secret"
	cfg.QuickBooks.RedirectURI = "http://localhost:8080/api/auth/quickbooks/callback"
	o := OAuth(cfg)
	require.NotNil(t, o)
	assert.Contains(t, o.AuthCodeURL("st"), "state=st")
}

func TestStore_NoDatabase(t *testing.T) {
	store, pool, err := Store(context.Background(), config.Defaults(), slog.Default())
	require.NoError(t, err)
	assert.Nil(t, store)
	assert.Nil(t, pool)
}

func TestGateways(t *testing.T) {
	factory := Gateways(config.Defaults(), slog.Default())
	gw, err := factory(&credentials.Credentials{AccessToken: "t", TenantID: "9130"})
	require.NoError(t, err)
	assert.NotNil(t, gw)
}

func TestService_ClassifiesWithoutNetwork(t *testing.T) {
	svc := Service(config.Defaults(), slog.Default())
	c := svc.ClassifyMessage("hello there")
	assert.False(t, c.RequiresTools())
}

func TestWebConfig_EnvCredentialsOptIn(t *testing.T) {
	t.Setenv(credentials.EnvAccessToken, "env-token")
	t.Setenv(credentials.EnvRealmID, "9130")
	cfg := config.Defaults()

	wc := WebConfig(cfg, nil, nil, slog.Default())
	assert.Nil(t, wc.Fallback, "anonymous requests get no environment tokens by default")

	cfg.Server.EnvCredentials = true
	wc = WebConfig(cfg, nil, nil, slog.Default())
	require.NotNil(t, wc.Fallback)
	creds, err := wc.Fallback.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9130", creds.TenantID)
}
