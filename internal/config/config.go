// Package config loads the engine's run configuration: a struct tree
// populated from an optional YAML file with environment variable
// overrides, covering the dispatcher, executors, metrics, logging, and
// debugger -- the same layered approach the teacher uses for its own
// daemon configuration (file defaults, env overrides, CLI flags win last).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DispatcherConfig controls the Ready Set / Dispatcher (C5).
type DispatcherConfig struct {
	MaxParallelJobs int `yaml:"max_parallel_jobs"` // 0 = unlimited
	PortCapacity    int `yaml:"port_capacity"`     // default input-port queue depth
}

// NativeExecutorConfig controls the in-process native executor (C6).
type NativeExecutorConfig struct {
	Workers int `yaml:"workers"` // fixed-size goroutine pool, default 8
}

// WasmExecutorConfig controls the WASM executor (C6).
type WasmExecutorConfig struct {
	CodeDir string        `yaml:"code_dir"`  // directory modules are resolved relative to
	Fuel    uint64        `yaml:"fuel"`      // nonzero only makes modules close on context cancellation; no instruction budget is counted
	Timeout time.Duration `yaml:"timeout"`   // per-call wall-clock limit; read from file/env but not passed to the WASM executor
	CacheSz int           `yaml:"cache_size"` // compiled-module cache entries
}

// RemoteExecutorConfig controls the optional distributed executor (C6).
type RemoteExecutorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`     // gRPC dial target
	Queue   string `yaml:"queue"`    // optional redis address for the notifier transport
	Retries int    `yaml:"retries"`  // transport-failure retries, all on the same Addr connection; no other peer is tried
}

// ExecutorConfig groups the three executor kinds.
type ExecutorConfig struct {
	Native NativeExecutorConfig `yaml:"native"`
	Wasm   WasmExecutorConfig   `yaml:"wasm"`
	Remote RemoteExecutorConfig `yaml:"remote"`
}

// MetricsConfig controls the metrics subsystem (§4.7).
type MetricsConfig struct {
	Enabled          bool      `yaml:"enabled"`
	Namespace        string    `yaml:"namespace"`
	HistogramBuckets []float64 `yaml:"histogram_buckets"`
}

// TracingConfig controls OpenTelemetry span emission.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// LoggingConfig controls the job/operational loggers.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	JobLog string `yaml:"job_log"` // optional path for per-job JSON log lines
}

// DebuggerConfig holds the debugger settings read from file/env. cmd/flowr
// reads neither field: the debugger is enabled only by --debugger or the
// debug subcommand, and always serves its protocol on stdin/stdout.
type DebuggerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // textual-protocol listen address; no listener is opened for it
}

// Config is the central configuration struct for one flowr run.
type Config struct {
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Logging    LoggingConfig    `yaml:"logging"`
	Debugger   DebuggerConfig   `yaml:"debugger"`
}

// Default returns a Config with sensible defaults, matching the spec's
// "0 = unlimited" and "capacity 1 = strict dataflow" defaults.
func Default() *Config {
	return &Config{
		Dispatcher: DispatcherConfig{
			MaxParallelJobs: 0,
			PortCapacity:    1,
		},
		Executor: ExecutorConfig{
			Native: NativeExecutorConfig{Workers: 8},
			Wasm: WasmExecutorConfig{
				CodeDir: ".",
				Fuel:    0,
				Timeout: 30 * time.Second,
				CacheSz: 64,
			},
			Remote: RemoteExecutorConfig{
				Enabled: false,
				Addr:    "localhost:9090",
				Retries: 1,
			},
		},
		Metrics: MetricsConfig{
			Enabled:          true,
			Namespace:        "flow",
			HistogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "flowr",
			SampleRate:  1.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Debugger: DebuggerConfig{
			Enabled: false,
		},
	}
}

// LoadFromFile reads a YAML config file over the defaults. A missing
// file is not an error at this layer -- callers that require one should
// check os.Stat first; flowr treats --config as optional.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv layers FLOW_-prefixed environment variable overrides onto cfg,
// exactly the override-after-file-defaults pattern the teacher's config
// and wasm.DefaultConfig both use.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("FLOW_MAX_PARALLEL_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dispatcher.MaxParallelJobs = n
		}
	}
	if v := os.Getenv("FLOW_PORT_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dispatcher.PortCapacity = n
		}
	}
	if v := os.Getenv("FLOW_NATIVE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Executor.Native.Workers = n
		}
	}
	if v := os.Getenv("FLOW_WASM_CODE_DIR"); v != "" {
		cfg.Executor.Wasm.CodeDir = v
	}
	if v := os.Getenv("FLOW_WASM_FUEL"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Executor.Wasm.Fuel = n
		}
	}
	if v := os.Getenv("FLOW_WASM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Executor.Wasm.Timeout = d
		}
	}
	if v := os.Getenv("FLOW_REMOTE_ENABLED"); v != "" {
		cfg.Executor.Remote.Enabled = parseBool(v)
	}
	if v := os.Getenv("FLOW_REMOTE_ADDR"); v != "" {
		cfg.Executor.Remote.Addr = v
		cfg.Executor.Remote.Enabled = true
	}
	if v := os.Getenv("FLOW_REMOTE_QUEUE"); v != "" {
		cfg.Executor.Remote.Queue = v
	}
	if v := os.Getenv("FLOW_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("FLOW_METRICS_NAMESPACE"); v != "" {
		cfg.Metrics.Namespace = v
	}
	if v := os.Getenv("FLOW_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("FLOW_TRACING_SERVICE_NAME"); v != "" {
		cfg.Tracing.ServiceName = v
	}
	if v := os.Getenv("FLOW_TRACING_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tracing.SampleRate = f
		}
	}
	if v := os.Getenv("FLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FLOW_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("FLOW_LOG_FILE"); v != "" {
		cfg.Logging.JobLog = v
	}
	if v := os.Getenv("FLOW_DEBUGGER_ENABLED"); v != "" {
		cfg.Debugger.Enabled = parseBool(v)
	}
	if v := os.Getenv("FLOW_DEBUGGER_LISTEN"); v != "" {
		cfg.Debugger.Listen = v
		cfg.Debugger.Enabled = true
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
