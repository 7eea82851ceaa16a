// Package tlsmanager provides automatic certificate management for the
// gateway's HTTPS listener via Let's Encrypt.
package tlsmanager

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"

	"github.com/hrmny/jig/config"
	"github.com/hrmny/jig/logger"
)

// ErrMissingServerName is returned when a TLS handshake carries no SNI and
// no default domain is configured.
var ErrMissingServerName = errors.New("missing server name")

// ErrHostNotAllowed is returned when a TLS handshake names a domain outside
// the configured allowlist.
var ErrHostNotAllowed = errors.New("host not allowed")

const letsEncryptDirectoryURL = "https://acme-v02.api.letsencrypt.org/directory"

// Manager obtains and renews certificates through ACME and hands out a TLS
// config whose GetCertificate resolves them per handshake.
type Manager struct {
	autocertMgr   *autocert.Manager
	tlsConfig     *tls.Config
	defaultDomain string
}

// New creates a certificate manager from configuration. Certificates are
// cached on disk in cfg.CacheDir so restarts do not re-drive the ACME
// endpoint.
func New(cfg config.ACMEConfig) (*Manager, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("ACME is not enabled in configuration")
	}
	if len(cfg.Domains) == 0 {
		return nil, fmt.Errorf("acme.domains is required and must not be empty")
	}
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = "/var/lib/jig/certs"
	}

	m := &Manager{
		autocertMgr: &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Email:      cfg.Email,
			HostPolicy: autocert.HostWhitelist(cfg.Domains...),
			Cache:      autocert.DirCache(cacheDir),
			Client: &acme.Client{
				DirectoryURL: letsEncryptDirectoryURL,
			},
		},
		defaultDomain: cfg.Domains[0],
	}

	base := m.autocertMgr.TLSConfig()
	m.tlsConfig = &tls.Config{
		MinVersion:    tls.VersionTLS12,
		Renegotiation: tls.RenegotiateNever,
		NextProtos:    base.NextProtos,
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			serverName := hello.ServerName
			if serverName == "" {
				if m.defaultDomain == "" {
					logger.Debug("TLS: rejected handshake without SNI")
					return nil, ErrMissingServerName
				}
				logger.Debug("TLS: missing SNI, using default domain", "domain", m.defaultDomain)
				serverName = m.defaultDomain
			}

			// DNS names are case-insensitive (RFC 4343).
			serverName = strings.ToLower(serverName)

			if err := m.autocertMgr.HostPolicy(hello.Context(), serverName); err != nil {
				logger.Info("TLS: rejected handshake for unconfigured domain", "domain", serverName)
				return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, serverName)
			}

			resolved := *hello
			resolved.ServerName = serverName
			cert, err := base.GetCertificate(&resolved)
			if err != nil {
				logger.Error("TLS: failed to get certificate", "domain", serverName, "error", err)
				return nil, err
			}
			return cert, nil
		},
	}

	logger.Info("TLS manager initialized", "domains", cfg.Domains, "cache_dir", cacheDir)
	return m, nil
}

// GetTLSConfig returns the TLS configuration backed by this manager.
func (m *Manager) GetTLSConfig() *tls.Config {
	return m.tlsConfig
}
