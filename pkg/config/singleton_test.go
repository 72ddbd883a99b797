package config

import (
	"testing"
)

func resetGlobal(t *testing.T) {
	t.Helper()
	prev := GetConfig()
	t.Cleanup(func() { SetConfig(prev) })
	SetConfig(nil)
}

func TestSetAndGetConfig(t *testing.T) {
	resetGlobal(t)

	if GetConfig() != nil {
		t.Fatal("Expected nil config before Set")
	}

	cfg := validConfig()
	SetConfig(cfg)

	if GetConfig() != cfg {
		t.Error("Expected SetConfig value from GetConfig")
	}
}

func TestMustGetConfig_Panics(t *testing.T) {
	resetGlobal(t)

	defer func() {
		if recover() == nil {
			t.Error("Expected MustGetConfig to panic without initialization")
		}
	}()
	MustGetConfig()
}

func TestReloadConfig(t *testing.T) {
	resetGlobal(t)

	path := writeConfigFile(t, sampleConfig)
	if err := ReloadConfig(path); err != nil {
		t.Fatalf("ReloadConfig failed: %v", err)
	}
	cfg := GetConfig()
	if cfg == nil || cfg.Router.ListenAddress != "127.0.0.1:7600" {
		t.Errorf("Expected reloaded config, got %+v", cfg)
	}
}

func TestReloadConfig_KeepsOldOnFailure(t *testing.T) {
	resetGlobal(t)

	good := validConfig()
	SetConfig(good)

	bad := writeConfigFile(t, "workspace: { roots: [] }")
	if err := ReloadConfig(bad); err == nil {
		t.Fatal("Expected reload failure for invalid config")
	}
	if GetConfig() != good {
		t.Error("Expected existing config to survive failed reload")
	}
}
