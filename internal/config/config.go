// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package config loads the gateway's environment-variable configuration,
// spec.md §6.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every item enumerated in spec.md §6 "Configuration".
type Config struct {
	LogLevel string `env:"MQTTSN_GW_LOG_LEVEL" envDefault:"info"`

	// GatewayID is the 1-octet id advertised in ADVERTISE/GWINFO.
	GatewayID byte `env:"MQTTSN_GW_GATEWAY_ID" envDefault:"1"`

	// KeepAlive is the seconds value advertised in ADVERTISE and used,
	// scaled 1.5x, as the default per-client keep-alive timer.
	KeepAlive time.Duration `env:"MQTTSN_GW_KEEP_ALIVE" envDefault:"60s"`

	// MQTTVersion selects the upstream MQTT wire version: 3, 4 or 5.
	MQTTVersion int `env:"MQTTSN_GW_MQTT_VERSION" envDefault:"4"`

	LoginID  string `env:"MQTTSN_GW_LOGIN_ID" envDefault:""`
	Password string `env:"MQTTSN_GW_PASSWORD" envDefault:""`

	// ClientAuthentication forbids address rebinding when true. CONNECTs
	// from ClientIds missing from a configured roster are rejected
	// whether or not it is set; without a roster it rejects no ClientId.
	ClientAuthentication bool `env:"MQTTSN_GW_CLIENT_AUTHENTICATION" envDefault:"false"`

	// Aggregator selects client kind for new clients: true =
	// Aggregator/ForwardedAggregator, false = Transparent/ForwardedTransparent.
	Aggregator bool `env:"MQTTSN_GW_AGGREGATOR" envDefault:"false"`

	QoSMinusOneProxy bool `env:"MQTTSN_GW_QOS_MINUS_ONE_PROXY" envDefault:"false"`

	// AllowDynamicForwarders permits a forwarder not listed in the
	// static roster to be registered the first time an ENCAPSULATED
	// frame arrives from its address (spec.md §6). When false, frames
	// from an address that is not a declared forwarder are dropped.
	AllowDynamicForwarders bool `env:"MQTTSN_GW_ALLOW_DYNAMIC_FORWARDERS" envDefault:"true"`

	// ClientIDToUserPassword enables the CLIENTID2UNPW split policy
	// (spec.md §4.2c).
	ClientIDToUserPassword bool `env:"MQTTSN_GW_CLIENTID_TO_USERPASS" envDefault:"false"`
	IMEILen                int  `env:"MQTTSN_GW_IMEI_LEN" envDefault:"15"`
	PasswordLen            int  `env:"MQTTSN_GW_PASSWORD_LEN" envDefault:"8"`

	SensorNetListenAddr string        `env:"MQTTSN_GW_SENSORNET_LISTEN_ADDR" envDefault:":10000"`
	BrokerURL           string        `env:"MQTTSN_GW_BROKER_URL" envDefault:"tcp://localhost:1883"`
	BrokerConnectTimeout time.Duration `env:"MQTTSN_GW_BROKER_CONNECT_TIMEOUT" envDefault:"10s"`

	RosterFile          string `env:"MQTTSN_GW_ROSTER_FILE" envDefault:""`
	PredefinedTopicFile string `env:"MQTTSN_GW_PREDEFINED_TOPIC_FILE" envDefault:""`

	PacketEventsQueueSize int `env:"MQTTSN_GW_PACKET_EVENTS_QUEUE_SIZE" envDefault:"256"`
	ClientSendQueueSize   int `env:"MQTTSN_GW_CLIENT_SEND_QUEUE_SIZE" envDefault:"256"`
	BrokerSendQueueSize   int `env:"MQTTSN_GW_BROKER_SEND_QUEUE_SIZE" envDefault:"256"`

	RegistryCapacity int `env:"MQTTSN_GW_REGISTRY_CAPACITY" envDefault:"0"`

	// LostClientGCGrace is how long a Lost client's registry slot is
	// kept (so in-flight events still resolve it) before it is forgotten.
	LostClientGCGrace time.Duration `env:"MQTTSN_GW_LOST_CLIENT_GC_GRACE" envDefault:"5m"`

	MetricsPort string `env:"MQTTSN_GW_METRICS_PORT" envDefault:"9090"`

	InstanceID string `env:"MQTTSN_GW_INSTANCE_ID" envDefault:""`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
