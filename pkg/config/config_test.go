package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	c := DefaultConfig()
	c.Interfaces = []InterfaceConfig{
		{Name: "eth0", MAC: "02:00:00:00:00:01", IP: "10.0.0.1"},
	}
	return c
}

func TestDefaultConfigRejectedWithoutInterfaces(t *testing.T) {
	c := DefaultConfig()
	assert.Error(t, c.Validate())
}

func TestValidConfigPasses(t *testing.T) {
	c := validConfig()
	assert.NoError(t, c.Validate())
}

func TestValidateRejectsBadMAC(t *testing.T) {
	c := validConfig()
	c.Interfaces[0].MAC = "not-a-mac"
	assert.Error(t, c.Validate())
}

func TestValidateRejectsBadIP(t *testing.T) {
	c := validConfig()
	c.Interfaces[0].IP = "not-an-ip"
	assert.Error(t, c.Validate())
}

func TestValidateRejectsRouteInterfaceOutOfRange(t *testing.T) {
	c := validConfig()
	c.Routes = []RouteConfig{{Prefix: "10.0.0.0", PrefixLength: 8, InterfaceIndex: 5}}
	assert.Error(t, c.Validate())
}

func TestValidateRejectsBadLoggingLevel(t *testing.T) {
	c := validConfig()
	c.Logging.Level = "verbose"
	assert.Error(t, c.Validate())
}

func TestValidateRejectsRetxAttemptsOutOfRange(t *testing.T) {
	c := validConfig()
	c.TCP.MaxRetransmissionAttempts = 0
	assert.Error(t, c.Validate())
}

func TestSaveAndLoadJSONRoundTrip(t *testing.T) {
	c := validConfig()
	c.Routes = []RouteConfig{{Prefix: "10.0.0.0", PrefixLength: 8, InterfaceIndex: 0}}

	path := filepath.Join(t.TempDir(), "stack.json")
	require.NoError(t, c.SaveToFile(path))

	loaded := &Config{}
	require.NoError(t, LoadFromFile(path, loaded))
	assert.Equal(t, c.Interfaces, loaded.Interfaces)
	assert.Equal(t, c.Routes, loaded.Routes)
	assert.Equal(t, c.TCP, loaded.TCP)
}

func TestSaveAndLoadYAMLRoundTrip(t *testing.T) {
	c := validConfig()

	path := filepath.Join(t.TempDir(), "stack.yaml")
	require.NoError(t, c.SaveToFile(path))

	loaded := &Config{}
	require.NoError(t, LoadFromFile(path, loaded))
	assert.Equal(t, c.Interfaces, loaded.Interfaces)
}

func TestLoadFromEnvOverridesTCPOptions(t *testing.T) {
	os.Setenv("TCP_MAX_PAYLOAD_SIZE", "500")
	os.Setenv("TCP_ISN", "42")
	defer os.Unsetenv("TCP_MAX_PAYLOAD_SIZE")
	defer os.Unsetenv("TCP_ISN")

	c := DefaultConfig()
	LoadFromEnv(c)
	assert.Equal(t, 500, c.TCP.MaxPayloadSize)
	assert.Equal(t, uint32(42), c.TCP.ISN)
}

func TestLoadFromFileRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.ini")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0644))

	loaded := &Config{}
	assert.Error(t, LoadFromFile(path, loaded))
}
