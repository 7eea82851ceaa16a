package tlsmanager

import (
	"crypto/tls"
	"errors"
	"testing"

	"github.com/hrmny/jig/config"
)

func TestNewRequiresEnabledConfig(t *testing.T) {
	_, err := New(config.ACMEConfig{Enabled: false})
	if err == nil {
		t.Error("New() with disabled config succeeded, want error")
	}
}

func TestNewRequiresDomains(t *testing.T) {
	_, err := New(config.ACMEConfig{Enabled: true, Email: "admin@example.com"})
	if err == nil {
		t.Error("New() without domains succeeded, want error")
	}
}

func TestGetCertificateRejectsUnknownDomain(t *testing.T) {
	m, err := New(config.ACMEConfig{
		Enabled:  true,
		Email:    "admin@example.com",
		Domains:  []string{"mail.example.com"},
		CacheDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cfg := m.GetTLSConfig()
	if cfg.GetCertificate == nil {
		t.Fatal("GetCertificate is nil")
	}

	_, err = cfg.GetCertificate(&tls.ClientHelloInfo{ServerName: "evil.example.org"})
	if !errors.Is(err, ErrHostNotAllowed) {
		t.Errorf("GetCertificate(evil.example.org) error = %v, want ErrHostNotAllowed", err)
	}
}

func TestGetCertificateRejectsMissingSNIWithoutDefault(t *testing.T) {
	m, err := New(config.ACMEConfig{
		Enabled:  true,
		Email:    "admin@example.com",
		Domains:  []string{"mail.example.com"},
		CacheDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	m.defaultDomain = ""

	_, err = m.GetTLSConfig().GetCertificate(&tls.ClientHelloInfo{})
	if !errors.Is(err, ErrMissingServerName) {
		t.Errorf("GetCertificate() error = %v, want ErrMissingServerName", err)
	}
}
