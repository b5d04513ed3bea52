package config

import (
	"testing"
	"time"

	test_test "github.com/aldas/go-canxl-regs/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	cfg, err := Load(test_test.TestdataPath("canxl.toml"))
	require.NoError(t, err)

	expect := Default()
	expect.Log = LogConfig{Level: "debug", Format: "json"}
	expect.Server = ServerConfig{
		Listen:          "127.0.0.1:9000",
		FragmentBaseURL: "https://example.com",
		ReadTimeout:     Duration{3 * time.Second},
	}
	expect.Decoder = DecoderConfig{
		ClockMHz:             160,
		DecodeReservedFields: true,
		DecodeLookups:        true,
		RegmapOverlays:       []string{"vendor_prt.hcl"},
	}
	expect.Calculator.BitrateArb = 1000
	expect.Serial.Device = "/dev/ttyUSB0"
	expect.Serial.Baud = 921600

	assert.Equal(t, expect, cfg)
}

func TestLoad_errors(t *testing.T) {
	var testCases = []struct {
		name        string
		when        string
		expectError string
	}{
		{
			name:        "nok, unknown key",
			when:        test_test.TestdataPath("unknown_key.toml"),
			expectError: "invalid configuration: " + test_test.TestdataPath("unknown_key.toml") + ": unknown key server.port",
		},
		{
			name:        "nok, invalid value",
			when:        test_test.TestdataPath("invalid.toml"),
			expectError: test_test.TestdataPath("invalid.toml") + ": invalid configuration: calculator.sp_arb must be between 0 and 100",
		},
		{
			name:        "nok, zero serial read timeout",
			when:        test_test.TestdataPath("zero_serial_timeout.toml"),
			expectError: test_test.TestdataPath("zero_serial_timeout.toml") + ": invalid configuration: serial.read_timeout must be positive",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.when)
			assert.EqualError(t, err, tc.expectError)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_missingExplicitFile(t *testing.T) {
	_, err := Load(test_test.TestdataPath("does_not_exist.toml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoad_defaultPathMissing(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
