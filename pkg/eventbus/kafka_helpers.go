package eventbus

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/internal/config"
)

// createKafkaSASLMechanism creates the appropriate SASL mechanism from config
func createKafkaSASLMechanism(cfg config.EventBusKafkaConfig) (sasl.Mechanism, error) {
	switch cfg.SASLMechanism {
	case "PLAIN", "":
		return plain.Mechanism{
			Username: cfg.SASLUsername,
			Password: cfg.SASLPassword,
		}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.SASLUsername, cfg.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.SASLUsername, cfg.SASLPassword)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", cfg.SASLMechanism)
	}
}

// buildKafkaTransport creates a kafka.Transport configured with SASL/TLS.
// A nil transport means the writer's default is fine.
func buildKafkaTransport(cfg config.EventBusKafkaConfig, logger *zap.Logger) (*kafka.Transport, error) {
	tlsConfig, err := buildTLSConfig(cfg.TLS, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build TLS config: %w", err)
	}

	transport := &kafka.Transport{TLS: tlsConfig, ClientID: cfg.ClientID}
	if cfg.SASLUsername != "" && cfg.SASLPassword != "" {
		mechanism, err := createKafkaSASLMechanism(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create SASL mechanism: %w", err)
		}
		transport.SASL = mechanism
	}

	if transport.TLS == nil && transport.SASL == nil && cfg.ClientID == "" {
		return nil, nil
	}
	return transport, nil
}

// kafkaCompression maps the configured codec name to a writer compression
func kafkaCompression(name string) (kafka.Compression, bool) {
	switch name {
	case "gzip":
		return kafka.Gzip, true
	case "snappy":
		return kafka.Snappy, true
	case "lz4":
		return kafka.Lz4, true
	case "zstd":
		return kafka.Zstd, true
	default:
		return 0, false
	}
}

// kafkaRequiredAcks maps 0, 1 and anything else to none, leader and all
func kafkaRequiredAcks(acks int) kafka.RequiredAcks {
	switch acks {
	case 0:
		return kafka.RequireNone
	case 1:
		return kafka.RequireOne
	default:
		return kafka.RequireAll
	}
}

// probeKafkaBrokers tests basic TCP connectivity to at least one broker
func probeKafkaBrokers(ctx context.Context, brokers []string, timeout time.Duration) error {
	dialer := &net.Dialer{Timeout: timeout}
	for _, broker := range brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err == nil {
			conn.Close()
			return nil
		}
	}
	return fmt.Errorf("%w: unable to reach any Kafka broker", ErrConnectionFailed)
}
