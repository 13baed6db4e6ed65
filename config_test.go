package gatekit

import (
	"testing"
	"time"

	"github.com/afyadigital/gatekit/store/memory"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero access ttl", func(c *Config) { c.JWT.AccessTTL = 0 }},
		{"zero refresh ttl", func(c *Config) { c.JWT.RefreshTTL = 0 }},
		{"unknown signing method", func(c *Config) { c.JWT.SigningMethod = "rs512" }},
		{"hs256 without key", func(c *Config) { c.JWT.PrivateKey = nil }},
		{"ed25519 without keys", func(c *Config) {
			c.JWT.SigningMethod = "ed25519"
			c.JWT.PrivateKey = nil
			c.JWT.PublicKey = nil
		}},
		{"zero session ttl", func(c *Config) { c.Session.TTL = 0 }},
		{"access outlives session", func(c *Config) {
			c.JWT.AccessTTL = 48 * time.Hour
			c.Session.TTL = 24 * time.Hour
		}},
		{"zero default window", func(c *Config) { c.RateLimit.Default.Window = 0 }},
		{"zero default ceiling", func(c *Config) { c.RateLimit.Default.Ceiling = 0 }},
		{"endpoint with zero ceiling", func(c *Config) {
			p := c.RateLimit.Endpoints["login"]
			p.Ceiling = 0
			c.RateLimit.Endpoints["login"] = p
		}},
		{"offender threshold without block", func(c *Config) {
			p := c.RateLimit.Endpoints["login"]
			p.OffenderThreshold = 3
			p.OffenderBlock = 0
			c.RateLimit.Endpoints["login"] = p
		}},
		{"zero otp ttl", func(c *Config) { c.OTP.Default.TTL = 0 }},
		{"otp digits too small", func(c *Config) { c.OTP.Default.Digits = 3 }},
		{"otp digits too large", func(c *Config) { c.OTP.Default.Digits = 11 }},
		{"device threshold out of range", func(c *Config) { c.Device.BlockThreshold = 101 }},
		{"device zero velocity window", func(c *Config) { c.Device.VelocityWindow = 0 }},
		{"audit enabled without buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateAllowsDisabledDevice(t *testing.T) {
	cfg := testConfig()
	cfg.Device.Enabled = false
	cfg.Device.BlockThreshold = 0
	cfg.Device.VelocityWindow = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled device tuning should not be validated: %v", err)
	}
}

func TestCloneConfigIsolation(t *testing.T) {
	cfg := testConfig()
	cloned := cloneConfig(cfg)

	cloned.JWT.PrivateKey[0] ^= 0xff
	cloned.RateLimit.Endpoints["login"] = cloned.RateLimit.Default
	cloned.Admission.FailClosed[0] = "changed"

	if cfg.JWT.PrivateKey[0] == cloned.JWT.PrivateKey[0] {
		t.Fatal("key bytes must be cloned")
	}
	if cfg.RateLimit.Endpoints["login"].Ceiling == cloned.RateLimit.Endpoints["login"].Ceiling &&
		cfg.RateLimit.Endpoints["login"].Window == cloned.RateLimit.Endpoints["login"].Window {
		t.Fatal("endpoint map must be cloned")
	}
	if cfg.Admission.FailClosed[0] == "changed" {
		t.Fatal("fail-closed slice must be cloned")
	}
}

func TestBuilderRequiresStoresOrDB(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected build failure without stores or database")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	mem := memory.New()
	b := New().WithConfig(testConfig()).WithStores(Stores{
		RateLimit: mem.RateLimit(),
		OTP:       mem.OTP(),
		Device:    mem.Device(),
		Session:   mem.Session(),
		Events:    mem.Events(),
	})

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}
