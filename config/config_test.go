package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestFromFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.json")
	body := `{
		"transport": {"listen_addrs": ["/ip4/127.0.0.1/tcp/7100"], "dial_timeout": "5s"},
		"swarm": {"max_peers": 16, "backoff_base": "500ms", "backoff_max": "1m",
			"max_retry_attempts": 3, "idle_timeout": "2m", "idle_check_interval": "10s"},
		"discovery": {"allow_private_addrs": true, "interval": "15s",
			"request_timeout": "5s", "max_peers_per_response": 8, "target_peers": 4,
			"bootstrap": ["/ip4/10.0.0.1/tcp/7100/p2p/4uQeVj5tqViQh7yWWGStvkEG1Zmhx6uasJtWmtqhxqvP"]}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := FromFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/7100"}, cfg.Transport.ListenAddrs)
	assert.Equal(t, 5*time.Second, cfg.Transport.DialTimeout.Std())
	assert.Equal(t, 16, cfg.Swarm.MaxPeers)
	assert.Equal(t, 500*time.Millisecond, cfg.Swarm.BackoffBase.Std())
	assert.True(t, cfg.Discovery.AllowPrivateAddrs)
	assert.Len(t, cfg.Discovery.Bootstrap, 1)

	// 未覆盖的部分保持默认
	assert.Equal(t, Default().PubSub.FilterCapacity, cfg.PubSub.FilterCapacity)
	assert.Equal(t, Default().ShutdownGrace, cfg.ShutdownGrace)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad listen addr", func(c *Config) { c.Transport.ListenAddrs = []string{"not-a-multiaddr"} }},
		{"zero max peers", func(c *Config) { c.Swarm.MaxPeers = 0 }},
		{"inverted backoff", func(c *Config) { c.Swarm.BackoffMax = c.Swarm.BackoffBase / 2 }},
		{"jitter out of range", func(c *Config) { c.Discovery.Jitter = 1.5 }},
		{"zero filter", func(c *Config) { c.PubSub.FilterCapacity = 0 }},
		{"zero topic limit", func(c *Config) { c.PubSub.TopicMaxPayload = map[string]int{"blocks": 0} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Std())

	require.NoError(t, d.UnmarshalJSON([]byte(`1000000000`)))
	assert.Equal(t, time.Second, d.Std())

	assert.Error(t, d.UnmarshalJSON([]byte(`"forever"`)))
	assert.Error(t, d.UnmarshalJSON([]byte(`true`)))

	out, err := Duration(time.Minute).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m0s"`, string(out))
}
