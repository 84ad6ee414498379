package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd",
			"-a", "127.0.0.1:9090", "-d", "db", "-q", "redis:6379",
			"-s", "access", "-k", "refresh",
			"-t", "1", "-r", "3", "-b", "https://example.com",
		}, expectPanic: false,
			expected: &Config{
				EndpointAddr:                 "127.0.0.1:9090",
				DatabaseDSN:                  "db",
				RedisAddr:                    "redis:6379",
				AccessSecret:                 "access",
				RefreshSecret:                "refresh",
				AccessTokenValidityDuration:  1 * time.Minute,
				RefreshTokenValidityDuration: 3 * time.Minute,
				PublicBaseURL:                "https://example.com",
			}},
		{name: "Test2 unrelated flags are ignored", args: []string{"cmd",
			"-a", ":7070", "-x", "garbage", "-unknown=1",
		}, expectPanic: false,
			expected: &Config{
				EndpointAddr: ":7070",
			}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}

			parseFlags(config)

			if diff := cmp.Diff(tt.expected, config); diff != "" {
				assert.Fail(t, "config mismatch", diff)
			}
		})
	}
}
