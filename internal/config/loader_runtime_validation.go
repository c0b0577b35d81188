package config

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// applyRuntimeValidation applies runtime validations and transformations
func applyRuntimeValidation(cfg *Config) error {
	normalizeTopics(&cfg.MQTT)
	if err := normalizeRelayTypes(&cfg.Bus); err != nil {
		return err
	}
	return applyTopicPrefix(cfg)
}

// normalizeTopics strips surrounding whitespace and slashes so that
// "<topic>/<suffix>" never produces an empty level.
func normalizeTopics(cfg *MQTTConfig) {
	for _, topic := range []*string{&cfg.EventTopic, &cfg.CommandTopic, &cfg.RelayTopic} {
		*topic = strings.Trim(strings.TrimSpace(*topic), "/")
	}
}

// normalizeRelayTypes drops duplicates and rejects types that cannot be used
// as a single MQTT topic level.
func normalizeRelayTypes(cfg *BusConfig) error {
	seen := make(map[string]struct{}, len(cfg.RelayTypes))
	out := cfg.RelayTypes[:0]
	for _, t := range cfg.RelayTypes {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if strings.ContainsAny(t, "/+#;") {
			return fmt.Errorf("relay type %q contains a reserved character", t)
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	cfg.RelayTypes = out
	return nil
}

// applyTopicPrefix prefixes MQTT topics with certificate CN if configured
func applyTopicPrefix(cfg *Config) error {
	if cfg.MQTT.UseCertCNPrefix && cfg.MQTT.ClientCert != "" {
		cn, err := extractCNFromCertFile(cfg.MQTT.ClientCert)
		if err != nil {
			return fmt.Errorf("failed to extract CN from certificate: %w", err)
		}
		cfg.MQTT.EventTopic = cn + "/" + cfg.MQTT.EventTopic
		cfg.MQTT.CommandTopic = cn + "/" + cfg.MQTT.CommandTopic
		cfg.MQTT.RelayTopic = cn + "/" + cfg.MQTT.RelayTopic
	}
	return nil
}

// extractCNFromCertFile extracts the CN from a PEM certificate file
func extractCNFromCertFile(certPath string) (string, error) {
	certPEM, err := os.ReadFile(certPath) // #nosec G304 - certPath is from config, not user input
	if err != nil {
		return "", fmt.Errorf("failed to read certificate: %w", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", fmt.Errorf("failed to decode PEM certificate")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}

	if cert.Subject.CommonName == "" {
		return "", fmt.Errorf("certificate has no CN")
	}

	return cert.Subject.CommonName, nil
}
