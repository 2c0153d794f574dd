package utils

import (
	"crypto/tls"
	"path/filepath"
	"testing"

	"ipress-dash/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	c := config.Postgres{Host: "db", Port: "5433", User: "app", Password: "s3cret", DB: "ipress", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:s3cret@db:5433/ipress?sslmode=disable", BuildPostgresDSN(c))
	c.Password = ""
	assert.Equal(t, "postgres://app@db:5433/ipress?sslmode=disable", BuildPostgresDSN(c))
}

func TestOpenRedisFromConfigDisabled(t *testing.T) {
	assert.Nil(t, OpenRedisFromConfig(config.Redis{Enable: false}))
	rc := OpenRedisFromConfig(config.Redis{Enable: true, Host: "127.0.0.1", Port: "6390", DB: -1})
	require.NotNil(t, rc)
	assert.Equal(t, "127.0.0.1:6390", rc.Options().Addr)
	assert.Equal(t, 0, rc.Options().DB)
	_ = rc.Close()
}

func TestEnsureSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "certs", "server.crt")
	key := filepath.Join(dir, "keys", "server.key")
	require.NoError(t, EnsureSelfSignedCert(cert, key, "ipress-dash.local"))
	_, err := tls.LoadX509KeyPair(cert, key)
	require.NoError(t, err)
	// second call keeps the existing pair
	require.NoError(t, EnsureSelfSignedCert(cert, key, "other"))
}
