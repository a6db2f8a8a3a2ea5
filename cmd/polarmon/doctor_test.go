package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"polarmon/internal/infra/config"
)

func TestStatusIcon(t *testing.T) {
	assert.Equal(t, "[PASS]", statusIcon(StatusPass))
	assert.Equal(t, "[WARN]", statusIcon(StatusWarn))
	assert.Equal(t, "[FAIL]", statusIcon(StatusFail))
}

func TestCheckConfigMissingFileIsPass(t *testing.T) {
	check := checkConfig("/nonexistent/config.yaml", nil)
	result := check(nil)
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "defaults")
}

func TestCheckDeviceSelection(t *testing.T) {
	cfg := config.Defaults()
	result := checkDeviceSelection(cfg)
	assert.Equal(t, StatusPass, result.Status)

	cfg.Device.Address = "aa:bb:cc:dd:ee:ff"
	result = checkDeviceSelection(cfg)
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "aa:bb:cc:dd:ee:ff")

	cfg.Device.Address = ""
	cfg.Device.NameFilter = ""
	result = checkDeviceSelection(cfg)
	assert.Equal(t, StatusFail, result.Status)
}

func TestParseFlags(t *testing.T) {
	orig := os.Args
	defer func() { os.Args = orig }()

	os.Args = []string{"polarmon", "--mode", "ecg", "--device=aa:bb", "--headless"}
	flags := parseFlags()
	assert.Equal(t, "ecg", flags.Mode)
	assert.Equal(t, "aa:bb", flags.Device)
	assert.True(t, flags.Headless)
}

func TestShowUI(t *testing.T) {
	orig := os.Args
	defer func() { os.Args = orig }()

	os.Args = []string{"polarmon"}
	assert.True(t, parseFlags().showUI(), "UI is on by default")

	os.Args = []string{"polarmon", "--visualize"}
	assert.True(t, parseFlags().showUI())

	os.Args = []string{"polarmon", "--headless"}
	assert.False(t, parseFlags().showUI())

	os.Args = []string{"polarmon", "--headless", "--visualize"}
	assert.True(t, parseFlags().showUI(), "explicit --visualize wins")
}
