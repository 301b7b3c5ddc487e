package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default values",
			env:  map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "8080" {
					t.Errorf("expected port 8080, got %s", cfg.Port)
				}
				if cfg.LogLevel != "info" {
					t.Errorf("expected log level info, got %s", cfg.LogLevel)
				}
				if cfg.AbandonmentThreshold != 5*time.Minute {
					t.Errorf("expected abandonment threshold 5m, got %v", cfg.AbandonmentThreshold)
				}
				if cfg.ResumeTokenTTL != 24*time.Hour {
					t.Errorf("expected resume token TTL 24h, got %v", cfg.ResumeTokenTTL)
				}
				if cfg.TransferAcceptTimeout != 60*time.Second {
					t.Errorf("expected transfer accept timeout 60s, got %v", cfg.TransferAcceptTimeout)
				}
				if cfg.MaxConcurrentChats != 5 {
					t.Errorf("expected max concurrent chats 5, got %d", cfg.MaxConcurrentChats)
				}
				if cfg.SweeperInterval != 30*time.Second {
					t.Errorf("expected sweeper interval 30s, got %v", cfg.SweeperInterval)
				}
				if cfg.DispatchInterval != 1*time.Second {
					t.Errorf("expected dispatch interval 1s, got %v", cfg.DispatchInterval)
				}
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"PORT":                            "9000",
				"LOG_LEVEL":                       "debug",
				"ABANDONMENT_THRESHOLD_SECONDS":   "120",
				"RESUME_TOKEN_TTL_SECONDS":        "3600",
				"TRANSFER_ACCEPT_TIMEOUT_SECONDS": "30",
				"MAX_CONCURRENT_CHATS":            "8",
				"SWEEPER_INTERVAL_SECONDS":        "10",
				"ALLOWED_ORIGINS":                 "http://example.com, http://test.com",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "9000" {
					t.Errorf("expected port 9000, got %s", cfg.Port)
				}
				if cfg.AbandonmentThreshold != 2*time.Minute {
					t.Errorf("expected abandonment threshold 2m, got %v", cfg.AbandonmentThreshold)
				}
				if cfg.ResumeTokenTTL != time.Hour {
					t.Errorf("expected resume token TTL 1h, got %v", cfg.ResumeTokenTTL)
				}
				if cfg.TransferAcceptTimeout != 30*time.Second {
					t.Errorf("expected transfer accept timeout 30s, got %v", cfg.TransferAcceptTimeout)
				}
				if cfg.MaxConcurrentChats != 8 {
					t.Errorf("expected max concurrent chats 8, got %d", cfg.MaxConcurrentChats)
				}
				if len(cfg.AllowedOrigins) != 2 {
					t.Fatalf("expected 2 origins, got %d", len(cfg.AllowedOrigins))
				}
				if cfg.AllowedOrigins[1] != "http://test.com" {
					t.Errorf("expected trimmed origin, got %q", cfg.AllowedOrigins[1])
				}
			},
		},
		{
			name:    "invalid abandonment threshold",
			env:     map[string]string{"ABANDONMENT_THRESHOLD_SECONDS": "soon"},
			wantErr: true,
		},
		{
			name:    "invalid max concurrent chats",
			env:     map[string]string{"MAX_CONCURRENT_CHATS": "many"},
			wantErr: true,
		},
		{
			name:    "zero max concurrent chats",
			env:     map[string]string{"MAX_CONCURRENT_CHATS": "0"},
			wantErr: true,
		},
	}

	keys := []string{
		"PORT", "LOG_LEVEL", "ALLOWED_ORIGINS",
		"ABANDONMENT_THRESHOLD_SECONDS", "RESUME_TOKEN_TTL_SECONDS",
		"TRANSFER_ACCEPT_TIMEOUT_SECONDS", "MAX_CONCURRENT_CHATS",
		"SWEEPER_INTERVAL_SECONDS", "DISPATCH_INTERVAL_SECONDS",
		"WS_READ_TIMEOUT", "WS_WRITE_TIMEOUT",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range keys {
				os.Unsetenv(k)
			}
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			defer func() {
				for k := range tt.env {
					os.Unsetenv(k)
				}
			}()

			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestPingPeriodLessThanPongWait(t *testing.T) {
	os.Unsetenv("WS_READ_TIMEOUT")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PingPeriod >= cfg.PongWait {
		t.Errorf("ping period %v must be less than pong wait %v", cfg.PingPeriod, cfg.PongWait)
	}
}
