package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	envVarConfigFile = "SIGNAL_CONFIG_FILE"

	envVarListenAddr      = "LISTEN_ADDR"
	envVarLogLevel        = "LOG_LEVEL"
	envVarLogFormat       = "LOG_FORMAT"
	envVarShutdownTimeout = "SHUTDOWN_TIMEOUT"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarStaticDir       = "STATIC_DIR"

	// WebSocket transport.
	envVarSendBufferSize       = "SEND_BUFFER_SIZE"
	envVarMaxMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarPingInterval         = "SIGNALING_WS_PING_INTERVAL"
	envVarIdleTimeout          = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarWriteWait            = "SIGNALING_WS_WRITE_WAIT"
	envVarStrictPayload        = "STRICT_PAYLOAD"

	envVarICEServers    = "ICE_SERVERS"
	envVarICEUsername   = "ICE_USERNAME"
	envVarICECredential = "ICE_CREDENTIAL"

	envVarTelemetryEndpoint  = "TELEMETRY_ENDPOINT"
	envVarTelemetryTimeout   = "TELEMETRY_TIMEOUT"
	envVarTelemetryQueueSize = "TELEMETRY_QUEUE_SIZE"

	envVarAnomalyWASMPath = "ANOMALY_WASM_PATH"
	envVarIngestRate      = "INGEST_RATE"
	envVarIngestBurst     = "INGEST_BURST"

	envVarAuthMode  = "AUTH_MODE"
	envVarJWTSecret = "JWT_SECRET"

	DefaultListenAddr           = ":8081"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = LogFormatText
	DefaultShutdownTimeout      = 5 * time.Second
	DefaultStaticDir            = "./static"
	DefaultSendBufferSize       = 256
	DefaultMaxMessageBytes      = int64(64 * 1024)
	DefaultMaxMessagesPerSecond = 50
	DefaultPingInterval         = 20 * time.Second
	DefaultIdleTimeout          = 60 * time.Second
	DefaultWriteWait            = 10 * time.Second
	DefaultICEServer            = "stun:stun.l.google.com:19302"
	DefaultTelemetryTimeout     = 2 * time.Second
	DefaultTelemetryQueueSize   = 1024
	DefaultAnomalyWASMPath      = "anomaly_detection.wasm"
	DefaultIngestRate           = 1000.0
	DefaultIngestBurst          = 2000
	DefaultAuthMode             = AuthModeNone
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type AuthMode string

const (
	AuthModeNone AuthMode = "none"
	AuthModeJWT  AuthMode = "jwt"
)

type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       LogFormat     `yaml:"log_format"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	StaticDir       string        `yaml:"static_dir"`

	SendBufferSize       int           `yaml:"send_buffer_size"`
	MaxMessageBytes      int64         `yaml:"max_message_bytes"`
	MaxMessagesPerSecond int           `yaml:"max_messages_per_second"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	IdleTimeout          time.Duration `yaml:"idle_timeout"`
	WriteWait            time.Duration `yaml:"write_wait"`
	StrictPayload        bool          `yaml:"strict_payload"`

	ICEServers    []string `yaml:"ice_servers"`
	ICEUsername   string   `yaml:"ice_username"`
	ICECredential string   `yaml:"ice_credential"`

	TelemetryEndpoint  string        `yaml:"telemetry_endpoint"`
	TelemetryTimeout   time.Duration `yaml:"telemetry_timeout"`
	TelemetryQueueSize int           `yaml:"telemetry_queue_size"`

	AnomalyWASMPath string  `yaml:"anomaly_wasm_path"`
	IngestRate      float64 `yaml:"ingest_rate"`
	IngestBurst     int     `yaml:"ingest_burst"`

	AuthMode  AuthMode `yaml:"auth_mode"`
	JWTSecret string   `yaml:"jwt_secret"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ListenAddr:           DefaultListenAddr,
		LogLevel:             DefaultLogLevel,
		LogFormat:            DefaultLogFormat,
		ShutdownTimeout:      DefaultShutdownTimeout,
		StaticDir:            DefaultStaticDir,
		SendBufferSize:       DefaultSendBufferSize,
		MaxMessageBytes:      DefaultMaxMessageBytes,
		MaxMessagesPerSecond: DefaultMaxMessagesPerSecond,
		PingInterval:         DefaultPingInterval,
		IdleTimeout:          DefaultIdleTimeout,
		WriteWait:            DefaultWriteWait,
		ICEServers:           []string{DefaultICEServer},
		TelemetryTimeout:     DefaultTelemetryTimeout,
		TelemetryQueueSize:   DefaultTelemetryQueueSize,
		AnomalyWASMPath:      DefaultAnomalyWASMPath,
		IngestRate:           DefaultIngestRate,
		IngestBurst:          DefaultIngestBurst,
		AuthMode:             DefaultAuthMode,
	}
}

// Load reads .env (if present), then the YAML file named by
// SIGNAL_CONFIG_FILE (if set), then environment overrides.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path, ok := lookup(envVarConfigFile); ok && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str(envVarListenAddr, &c.ListenAddr)
	e.str(envVarLogLevel, &c.LogLevel)
	if v, ok := e.get(envVarLogFormat); ok {
		c.LogFormat = LogFormat(strings.ToLower(v))
	}
	e.duration(envVarShutdownTimeout, &c.ShutdownTimeout)
	e.list(envVarAllowedOrigins, &c.AllowedOrigins)
	e.str(envVarStaticDir, &c.StaticDir)

	e.integer(envVarSendBufferSize, &c.SendBufferSize)
	e.int64(envVarMaxMessageBytes, &c.MaxMessageBytes)
	e.integer(envVarMaxMessagesPerSecond, &c.MaxMessagesPerSecond)
	e.duration(envVarPingInterval, &c.PingInterval)
	e.duration(envVarIdleTimeout, &c.IdleTimeout)
	e.duration(envVarWriteWait, &c.WriteWait)
	e.boolean(envVarStrictPayload, &c.StrictPayload)

	e.list(envVarICEServers, &c.ICEServers)
	e.str(envVarICEUsername, &c.ICEUsername)
	e.str(envVarICECredential, &c.ICECredential)

	e.str(envVarTelemetryEndpoint, &c.TelemetryEndpoint)
	e.duration(envVarTelemetryTimeout, &c.TelemetryTimeout)
	e.integer(envVarTelemetryQueueSize, &c.TelemetryQueueSize)

	e.str(envVarAnomalyWASMPath, &c.AnomalyWASMPath)
	e.float(envVarIngestRate, &c.IngestRate)
	e.integer(envVarIngestBurst, &c.IngestBurst)

	if v, ok := e.get(envVarAuthMode); ok {
		c.AuthMode = AuthMode(strings.ToLower(v))
	}
	e.str(envVarJWTSecret, &c.JWTSecret)

	return e.err
}

func (c Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("%s: unknown log format %q", envVarLogFormat, c.LogFormat))
	}
	switch c.AuthMode {
	case AuthModeNone:
	case AuthModeJWT:
		if c.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("%s is required when %s=jwt", envVarJWTSecret, envVarAuthMode))
		}
	default:
		errs = append(errs, fmt.Errorf("%s: unknown auth mode %q", envVarAuthMode, c.AuthMode))
	}
	if c.SendBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0", envVarSendBufferSize))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0", envVarMaxMessageBytes))
	}
	if c.MaxMessagesPerSecond < 0 {
		errs = append(errs, fmt.Errorf("%s must be >= 0", envVarMaxMessagesPerSecond))
	}
	if c.PingInterval <= 0 || c.IdleTimeout <= c.PingInterval {
		errs = append(errs, fmt.Errorf("%s must be > 0 and below %s", envVarPingInterval, envVarIdleTimeout))
	}
	if c.WriteWait <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0", envVarWriteWait))
	}
	if c.TelemetryQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0", envVarTelemetryQueueSize))
	}
	if c.IngestRate <= 0 || c.IngestBurst <= 0 {
		errs = append(errs, fmt.Errorf("%s and %s must be > 0", envVarIngestRate, envVarIngestBurst))
	}
	return errors.Join(errs...)
}

type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) fail(key string, err error) {
	e.err = errors.Join(e.err, fmt.Errorf("%s: %w", key, err))
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) int64(key string, dst *int64) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = d
	}
}
