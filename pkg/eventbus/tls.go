package eventbus

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/internal/config"
)

// buildTLSConfig creates a TLS configuration from the config settings.
// It returns nil when TLS is disabled.
func buildTLSConfig(cfg config.TLSConfig, logger *zap.Logger) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		ServerName:         cfg.ServerName,
	}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file %s: %w", cfg.CAFile, err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = caCertPool

		logger.Info("Loaded CA certificate", zap.String("file", cfg.CAFile))
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	} else if cfg.CertFile != "" || cfg.KeyFile != "" {
		logger.Warn("Both cert_file and key_file must be specified for client certificate authentication",
			zap.String("certFile", cfg.CertFile),
			zap.String("keyFile", cfg.KeyFile))
	}

	return tlsConfig, nil
}
