// Package config loads and validates the single Config record a
// participant is built from (spec §6 "CLI surface (external, not in
// core). The core consumes only a Config record enumerating...").
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/hdds-team/hdds-sub002/internal/congestion"
	"github.com/hdds-team/hdds-sub002/internal/hddserr"
	"github.com/hdds-team/hdds-sub002/pkg/log"
	"github.com/joho/godotenv"
)

// TransportKind selects the wire transport (spec §6 "transport: {
// UdpMulticast | IntraProcess | UdpUnicast+peers | Tcp+peers |
// Quic+peers }").
type TransportKind string

const (
	TransportUdpMulticast TransportKind = "udp_multicast"
	TransportIntraProcess TransportKind = "intra_process"
	TransportUdpUnicast   TransportKind = "udp_unicast"
	TransportTcp          TransportKind = "tcp"
	TransportQuic         TransportKind = "quic"
)

// HistoryKind mirrors internal/history.HistoryKind in JSON form so this
// package doesn't need to import history just for the enum.
type HistoryKind string

const (
	HistoryKeepLast HistoryKind = "keep_last"
	HistoryKeepAll  HistoryKind = "keep_all"
)

// QosConfig is the subset of DDS QoS policies HDDS implements (spec §3,
// §6 "qos: { reliability, durability, history, resource_limits, ... }").
type QosConfig struct {
	Reliability           string      `json:"reliability"` // "reliable" | "best_effort"
	Durability            string      `json:"durability"`  // "volatile" | "transient_local"
	History               HistoryKind `json:"history"`
	Depth                 int64       `json:"depth"`
	MaxSamples            int64       `json:"max_samples"`
	MaxInstances          int64       `json:"max_instances"`
	MaxSamplesPerInstance int64       `json:"max_samples_per_instance"`
	MaxQuotaBytes         int64       `json:"max_quota_bytes"`
}

// CongestionConfig carries every tunable the congestion package exposes
// (spec §6 "congestion: { enabled, min/max/ai_step/md_factors, priority
// shares, queue depths, ecn_mode }").
type CongestionConfig struct {
	Enabled      bool    `json:"enabled"`
	MinBps       float64 `json:"min_bps"`
	MaxBps       float64 `json:"max_bps"`
	TickInterval string  `json:"tick_interval"`

	P0MinShare   float64 `json:"p0_min_share"`
	P0MinBps     float64 `json:"p0_min_bps"`
	P1Share      float64 `json:"p1_share"`
	P2Share      float64 `json:"p2_share"`
	MinPerWriter float64 `json:"min_per_writer"`

	MaxQueueP0 int `json:"max_queue_p0"`
	MaxQueueP1 int `json:"max_queue_p1"`

	EcnMode string `json:"ecn_mode"` // "opportunistic" | "mandatory"
}

// SecurityConfig is the optional peer-authentication suite (spec §6
// "security: Option<{ ca_cert_pem, identity_cert_pem, private_key_pem,
// require_authentication, enable_revocation }>").
type SecurityConfig struct {
	CaCertPem             string `json:"ca_cert_pem"`
	IdentityCertPem       string `json:"identity_cert_pem"`
	PrivateKeyPem         string `json:"private_key_pem"`
	RequireAuthentication bool   `json:"require_authentication"`
	EnableRevocation      bool   `json:"enable_revocation"`
	SigningKey            string `json:"signing_key"`
}

// BridgeConfig optionally enables the NATS DynamicData forwarder
// (supplemented RMW-bridging feature; see internal/bridge).
type BridgeConfig struct {
	Enabled       bool   `json:"enabled"`
	Address       string `json:"address"`
	SubjectPrefix string `json:"subject_prefix"`
}

// Config is the single record a Participant is built from (spec §6).
type Config struct {
	DomainID      uint16           `json:"domain_id"`
	ParticipantID *uint8           `json:"participant_id"` // nil = probe (spec §6)
	Transport     TransportKind    `json:"transport"`
	StaticPeers   []string         `json:"static_peers"`
	Qos           QosConfig        `json:"qos"`
	Congestion    CongestionConfig `json:"congestion"`
	Security      *SecurityConfig  `json:"security"`
	Bridge        BridgeConfig     `json:"bridge"`
}

// Default returns a Config populated with every documented default from
// spec §3/§4.6/§6.
func Default() Config {
	return Config{
		DomainID:  0,
		Transport: TransportUdpMulticast,
		Qos: QosConfig{
			Reliability: "reliable",
			Durability:  "volatile",
			History:     HistoryKeepLast,
			Depth:       1,
		},
		Congestion: CongestionConfig{
			Enabled:      true,
			MinBps:       1 << 16,
			MaxBps:       1 << 24,
			TickInterval: congestion.DefaultTickInterval.String(),
			P0MinShare:   0.1,
			P0MinBps:     1000,
			P1Share:      0.7,
			P2Share:      0.3,
			MinPerWriter: 100,
			MaxQueueP0:   64,
			MaxQueueP1:   256,
			EcnMode:      "opportunistic",
		},
	}
}

// TickInterval parses Congestion.TickInterval, falling back to
// congestion.DefaultTickInterval on an empty or malformed value.
func (c Config) TickInterval() time.Duration {
	if c.Congestion.TickInterval == "" {
		return congestion.DefaultTickInterval
	}
	d, err := time.ParseDuration(c.Congestion.TickInterval)
	if err != nil {
		log.Warnf("config: invalid tick_interval %q, using default: %v", c.Congestion.TickInterval, err)
		return congestion.DefaultTickInterval
	}
	return d
}

// Load reads environment overrides from a .env file (if present, via
// godotenv — grounded on the teacher's env-first configuration style),
// then decodes and validates a JSON config file at path, layering it
// over Default(). HDDS_PARTICIPANT_ID, when set, pins the participant id
// so the UDP transport skips probing; a participant_id in the JSON file
// takes precedence over it.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("config: .env load failed: %v", err)
	}

	cfg := Default()
	if env := os.Getenv("HDDS_PARTICIPANT_ID"); env != "" {
		v, err := strconv.ParseUint(env, 10, 8)
		if err != nil {
			return cfg, hddserr.Wrap(hddserr.Config, "config: invalid HDDS_PARTICIPANT_ID %q", env)
		}
		id := uint8(v)
		cfg.ParticipantID = &id
	}
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := Validate(raw); err != nil {
		return cfg, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
