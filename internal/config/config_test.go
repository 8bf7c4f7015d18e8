package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "OWNER_ADDRESS", "0x1234567890123456789012345678901234567890")
	setEnv(t, "INSTANCE_ADDRESS", "0xabcdefabcdef1234567890123456789012345678")
	setEnv(t, "PORT", "9090")
	setEnv(t, "PLATFORM_FEE_BPS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, int64(DefaultPlatformFeeBPS), cfg.PlatformFeeBPS)
}

func TestLoad_MissingOwner(t *testing.T) {
	setEnv(t, "OWNER_ADDRESS", "")
	setEnv(t, "INSTANCE_ADDRESS", "0xabcdefabcdef1234567890123456789012345678")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "OWNER_ADDRESS is required")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid config",
			config: Config{
				OwnerAddress:    "0x1234567890123456789012345678901234567890",
				InstanceAddress: "0xabcdefabcdef1234567890123456789012345678",
				PlatformFeeBPS:  50,
			},
			wantErr: "",
		},
		{
			name: "missing owner",
			config: Config{
				InstanceAddress: "0xabcdefabcdef1234567890123456789012345678",
			},
			wantErr: "OWNER_ADDRESS is required",
		},
		{
			name: "malformed owner",
			config: Config{
				OwnerAddress:    "not-an-address",
				InstanceAddress: "0xabcdefabcdef1234567890123456789012345678",
			},
			wantErr: "OWNER_ADDRESS must be",
		},
		{
			name: "missing instance",
			config: Config{
				OwnerAddress: "0x1234567890123456789012345678901234567890",
			},
			wantErr: "INSTANCE_ADDRESS is required",
		},
		{
			name: "platform fee above cap",
			config: Config{
				OwnerAddress:    "0x1234567890123456789012345678901234567890",
				InstanceAddress: "0xabcdefabcdef1234567890123456789012345678",
				PlatformFeeBPS:  101,
			},
			wantErr: "PLATFORM_FEE_BPS must be between",
		},
		{
			name: "negative platform fee",
			config: Config{
				OwnerAddress:    "0x1234567890123456789012345678901234567890",
				InstanceAddress: "0xabcdefabcdef1234567890123456789012345678",
				PlatformFeeBPS:  -1,
			},
			wantErr: "PLATFORM_FEE_BPS must be between",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}
