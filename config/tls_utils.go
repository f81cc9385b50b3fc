// config/tls_utils.go - TLS certificate management for the listener

package config

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zquestz/nexus/adapter/outbound/crypto"
	"github.com/zquestz/nexus/domain/port/outbound"
)

// EnsureTLSCertificates makes sure a usable certificate and key exist,
// generating a self-signed pair beside the database when none is
// configured. Returns the resolved cert and key paths.
func EnsureTLSCertificates(cfg *Config, logger outbound.Logger) (certPath, keyPath string, err error) {
	certPath = cfg.Server.CertFile
	keyPath = cfg.Server.KeyFile

	if certPath == "" || keyPath == "" {
		tlsDir := filepath.Join(cfg.General.DataDir, "tls")
		if err := os.MkdirAll(tlsDir, 0o755); err != nil {
			return "", "", fmt.Errorf("creating TLS directory: %w", err)
		}
		certPath = filepath.Join(tlsDir, "server.crt")
		keyPath = filepath.Join(tlsDir, "server.key")
	}

	if certificatesExist(certPath, keyPath) {
		if isCertificateValid(certPath) {
			logger.Info("Using existing TLS certificates",
				"certFile", certPath, "keyFile", keyPath)
			logFingerprint(certPath, logger)
			return certPath, keyPath, nil
		}
		logger.Info("Existing certificate expired or invalid, regenerating")
	}

	hostname := "localhost"
	if len(cfg.Server.Binds) > 0 {
		if b := cfg.Server.Binds[0]; b != "" && b != "0.0.0.0" && b != "::" {
			hostname = b
		}
	}

	certPEM, keyPEM, err := crypto.GenerateTLSCertificate(hostname)
	if err != nil {
		return "", "", fmt.Errorf("generating TLS certificate: %w", err)
	}
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return "", "", fmt.Errorf("saving certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return "", "", fmt.Errorf("saving private key: %w", err)
	}

	logger.Info("Generated self-signed TLS certificate",
		"certFile", certPath, "keyFile", keyPath,
		"hostname", hostname, "validity", "1 year")
	logFingerprint(certPath, logger)
	return certPath, keyPath, nil
}

func certificatesExist(certPath, keyPath string) bool {
	if _, err := os.Stat(certPath); err != nil {
		return false
	}
	if _, err := os.Stat(keyPath); err != nil {
		return false
	}
	return true
}

func isCertificateValid(certPath string) bool {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return false
	}
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return false
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return false
	}
	// Regenerate a little early so restarts don't race expiry.
	return time.Now().Add(24 * time.Hour).Before(cert.NotAfter)
}

// logFingerprint prints the fingerprint clients pin against.
func logFingerprint(certPath string, logger outbound.Logger) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return
	}
	fp, err := crypto.CertificateFingerprint(certPEM)
	if err != nil {
		return
	}
	logger.Info("TLS certificate fingerprint", "sha256", fp)
}
