package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestMustLoadPath(t *testing.T) {
	path := writeConfig(t, `
env: prod
http:
  address: ":9000"
  allowed_origins:
    - https://meet.example.com
relay:
  reconnect_grace: 30s
  room_lifetime: 2h
webrtc:
  stun_servers:
    - stun:stun.example.com:3478
`)

	cfg := MustLoadPath(path)
	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, ":9000", cfg.HTTP.Address)
	require.Equal(t, []string{"https://meet.example.com"}, cfg.HTTP.AllowedOrigins)
	require.Equal(t, 30*time.Second, cfg.Relay.ReconnectGrace)
	require.Equal(t, 2*time.Hour, cfg.Relay.RoomLifetime)
	require.Equal(t, []string{"stun:stun.example.com:3478"}, cfg.WebRTC.STUNServers)
}

func TestMustLoadPathDefaults(t *testing.T) {
	cfg := MustLoadPath(writeConfig(t, "env: local\n"))

	require.Equal(t, ":8080", cfg.HTTP.Address)
	require.Equal(t, 15*time.Second, cfg.Relay.ReconnectGrace)
	require.Zero(t, cfg.Relay.RoomLifetime)
	require.Empty(t, cfg.Database.DSN)
	require.NotEmpty(t, cfg.WebRTC.STUNServers)
}

func TestMustLoadPathMissingFile(t *testing.T) {
	require.Panics(t, func() {
		MustLoadPath(filepath.Join(t.TempDir(), "nope.yaml"))
	})
}
