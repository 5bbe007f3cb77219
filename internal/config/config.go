// Package config loads the coordinator's configuration: a YAML file read
// with viper for the bulk of the settings (queue capacity, timeouts,
// calibration, library paths), then environment overrides for the PLC
// endpoint layered on with envconfig, matching spec.md §6's explicit
// OPC_UA_URL / OPC_UA_NAMESPACE_INDEX override contract.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// LayerParameterPolicy resolves spec.md §9's Open Question on whether
// write_layer_parameters always passes layers=1 or the actual layer
// number.
type LayerParameterPolicy string

const (
	PolicyFixedOne          LayerParameterPolicy = "fixed_one"
	PolicyActualLayerNumber LayerParameterPolicy = "actual_layer_number"
)

// Config is the coordinator's fully-resolved configuration.
type Config struct {
	// QueueCapacity is the bounded command-block queue's depth, clamped to
	// [1, 10]. The default of 1 gives strict single-piece flow; raising it
	// lets the producer get ahead of the consumer by that many layers.
	QueueCapacity int `mapstructure:"queue_capacity"`

	// PLCTransport selects "opcua" or "sim".
	PLCTransport string `mapstructure:"plc_transport"`

	LayerParameterPolicy LayerParameterPolicy `mapstructure:"layer_parameter_policy"`

	// HandshakePollIntervalMs is the handshake poller's cadence (~500ms
	// per spec.md §4.7), adjustable at runtime via set_polling_interval.
	HandshakePollIntervalMs int `mapstructure:"handshake_poll_interval_ms"`

	// Timeouts, per spec.md §5.
	OpcConnectTimeoutSeconds      int `mapstructure:"opc_connect_timeout_seconds"`
	BatchCompletionTimeoutSeconds int `mapstructure:"batch_completion_timeout_seconds"`
	PlcReadinessTimeoutSeconds    int `mapstructure:"plc_readiness_timeout_seconds"`

	// Calibration overrides; zero FieldSizeMM means "use
	// rtc.DefaultCalibration" instead.
	FieldSizeMM     float64 `mapstructure:"field_size_mm"`
	MaxBits         int32   `mapstructure:"max_bits"`
	ScaleCorrection float64 `mapstructure:"scale_correction"`

	ParamLibraryPath string `mapstructure:"param_library_path"`
	AuditDBPath      string `mapstructure:"audit_db_path"`

	ControlSurfaceAddr string `mapstructure:"control_surface_addr"`

	Env EnvOverrides
}

// EnvOverrides are the environment-variable overrides spec.md §6 names
// explicitly, layered on top of the YAML file with envconfig instead of
// viper's own env binding, matching the pack's convention of a dedicated
// envconfig struct for process-environment configuration.
type EnvOverrides struct {
	OpcUAURL            string `envconfig:"OPC_UA_URL" default:"opc.tcp://localhost:4840"`
	OpcUANamespaceIndex int    `envconfig:"OPC_UA_NAMESPACE_INDEX" default:"2"`
	SimulatorURL        string `envconfig:"PLCSIM_URL" default:"http://localhost:8090"`
	JWTSecret           string `envconfig:"CONTROL_JWT_SECRET" default:"dev-secret-change-in-production"`
}

func setDefaults() {
	viper.SetDefault("queue_capacity", 1)
	viper.SetDefault("plc_transport", "sim")
	viper.SetDefault("layer_parameter_policy", string(PolicyFixedOne))
	viper.SetDefault("handshake_poll_interval_ms", 500)
	viper.SetDefault("opc_connect_timeout_seconds", 10)
	viper.SetDefault("batch_completion_timeout_seconds", 100)
	viper.SetDefault("plc_readiness_timeout_seconds", 5)
	viper.SetDefault("field_size_mm", 163.4)
	viper.SetDefault("max_bits", 524287)
	viper.SetDefault("scale_correction", 1.0)
	viper.SetDefault("param_library_path", "buildstyles.json")
	viper.SetDefault("audit_db_path", "audit.sqlite")
	viper.SetDefault("control_surface_addr", ":8080")
}

// Load reads config.yaml from the current directory, layers environment
// overrides on top, and clamps the queue capacity to its documented
// bounds. A missing config.yaml is not an error — every setting has a
// default.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := envconfig.Process("", &cfg.Env); err != nil {
		return nil, fmt.Errorf("process environment overrides: %w", err)
	}

	if cfg.QueueCapacity < 1 {
		cfg.QueueCapacity = 1
	}
	if cfg.QueueCapacity > 10 {
		cfg.QueueCapacity = 10
	}
	if cfg.LayerParameterPolicy == "" {
		cfg.LayerParameterPolicy = PolicyFixedOne
	}

	return &cfg, nil
}
