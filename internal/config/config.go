package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/ethanadams/solarnet-synthetics/internal/solarnet"
)

// Executor names accepted in test definitions.
const (
	ExecutorHTTP = "http"
	ExecutorCurl = "curl"
	ExecutorK6   = "k6"
)

// Archive backends.
const (
	ArchiveBackendS3    = "s3"
	ArchiveBackendStorj = "storj"
)

// Environment variables read by CredentialsFromEnv.
const (
	EnvHost   = "SOLARNETWORK_HOST"
	EnvToken  = "SOLARNETWORK_TOKEN"
	EnvSecret = "SOLARNETWORK_SECRET"
)

const (
	defaultStepTimeout = 2 * time.Minute
	defaultMaxBody     = ByteSize(1024 * 1024)
)

// Config represents the application configuration
type Config struct {
	SolarNetwork SolarNetworkConfig `yaml:"solarnetwork"`
	Archive      ArchiveConfig      `yaml:"archive"`
	Tests        []Test             `yaml:"tests"`
	K6           K6Config           `yaml:"k6"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
	Jitter       JitterConfig       `yaml:"jitter"` // Global jitter config (default: disabled)
}

// SolarNetworkConfig holds the API host and security token.
type SolarNetworkConfig struct {
	Host    string `yaml:"host"`
	Token   string `yaml:"token"`
	Secret  string `yaml:"secret"`
	Scheme  string `yaml:"scheme"`
	Timeout string `yaml:"timeout"`
}

// String redacts the secret.
func (c SolarNetworkConfig) String() string {
	return fmt.Sprintf("{Host:%s Token:%s Secret:<redacted> Scheme:%s Timeout:%s}", c.Host, c.Token, c.Scheme, c.Timeout)
}

// GoString redacts the secret for %#v.
func (c SolarNetworkConfig) GoString() string {
	return c.String()
}

// Credentials returns the client credentials for this configuration.
func (c SolarNetworkConfig) Credentials() solarnet.Credentials {
	return solarnet.Credentials{Token: c.Token, Secret: c.Secret, Host: c.Host}
}

// TimeoutDuration returns the per-request timeout (default 30s).
func (c SolarNetworkConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ArchiveConfig selects where probe response bodies are stored.
type ArchiveConfig struct {
	Backend    string      `yaml:"backend"` // "", "s3" or "storj"
	Bucket     string      `yaml:"bucket"`
	Prefix     string      `yaml:"prefix"`
	TTLSeconds int         `yaml:"ttl_seconds"`
	S3         S3Config    `yaml:"s3"`
	Storj      StorjConfig `yaml:"storj"`
}

// Enabled reports whether an archive backend is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Backend != ""
}

// TTL returns the object expiry, zero when unset.
func (a ArchiveConfig) TTL() time.Duration {
	if a.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(a.TTLSeconds) * time.Second
}

// S3Config holds S3 gateway configuration
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
}

// StorjConfig holds Storj satellite configuration
type StorjConfig struct {
	AccessGrant string `yaml:"access_grant"`
}

// JitterConfig holds jitter configuration
type JitterConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"` // nil = inherit from parent, false = disabled
	Max     string `yaml:"max,omitempty"`     // Max jitter: duration ("30s") or percentage ("10%")
}

// Test defines a synthetic probe (1+ sequential API calls)
type Test struct {
	Name     string        `yaml:"name"`
	Schedule string        `yaml:"schedule"`
	Enabled  bool          `yaml:"enabled"`
	Executor string        `yaml:"executor"`         // "http", "curl" or "k6" (default: "http")
	Archive  bool          `yaml:"archive"`          // Store response bodies in the archive backend
	Jitter   *JitterConfig `yaml:"jitter,omitempty"` // Optional: test-level jitter override
	Steps    []TestStep    `yaml:"steps"`            // Required: 1+ steps
}

// TestStep defines a single API call within a test
type TestStep struct {
	Name         string          `yaml:"name"`
	Method       solarnet.Method `yaml:"method"`
	Path         string          `yaml:"path"`
	Params       Params          `yaml:"params"`
	Accept       string          `yaml:"accept"`
	Body         any             `yaml:"body"`
	ExpectStatus int             `yaml:"expect_status"`
	Timeout      string          `yaml:"timeout"`
	Script       string          `yaml:"script"` // k6 executor only
	MaxBody      *ByteSize       `yaml:"max_body,omitempty"`

	// Jitter options
	Jitter *JitterConfig `yaml:"jitter,omitempty"` // Optional: step-level jitter
}

// Params are query parameters. Each value may be a scalar or a list.
type Params map[string][]string

// UnmarshalYAML accepts `key: value` and `key: [v1, v2]`.
func (p *Params) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("params must be a mapping, got line %d", value.Line)
	}
	out := make(Params, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		v := value.Content[i+1]
		switch v.Kind {
		case yaml.ScalarNode:
			out[key] = []string{v.Value}
		case yaml.SequenceNode:
			values := make([]string, 0, len(v.Content))
			for _, item := range v.Content {
				if item.Kind != yaml.ScalarNode {
					return fmt.Errorf("param %s: list items must be scalars", key)
				}
				values = append(values, item.Value)
			}
			out[key] = values
		default:
			return fmt.Errorf("param %s must be a scalar or list", key)
		}
	}
	*p = out
	return nil
}

// Values converts params to url.Values.
func (p Params) Values() url.Values {
	if len(p) == 0 {
		return nil
	}
	v := make(url.Values, len(p))
	for key, values := range p {
		v[key] = append([]string(nil), values...)
	}
	return v
}

// ByteSize represents a size that can be specified as bytes or human-readable format
type ByteSize int64

// UnmarshalYAML implements custom YAML unmarshaling for human-readable sizes
func (bs *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var intVal int64
	if err := value.Decode(&intVal); err == nil {
		*bs = ByteSize(intVal)
		return nil
	}

	var strVal string
	if err := value.Decode(&strVal); err != nil {
		return fmt.Errorf("size must be a number or string like '5MB': %w", err)
	}

	size, err := parseByteSize(strVal)
	if err != nil {
		return err
	}
	*bs = ByteSize(size)
	return nil
}

// Int64 returns the byte size as int64
func (bs ByteSize) Int64() int64 {
	return int64(bs)
}

// String returns the byte size in human-readable format
func (bs ByteSize) String() string {
	bytes := int64(bs)
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB && bytes%(GB) == 0:
		return fmt.Sprintf("%dGB", bytes/GB)
	case bytes >= MB && bytes%(MB) == 0:
		return fmt.Sprintf("%dMB", bytes/MB)
	case bytes >= KB && bytes%(KB) == 0:
		return fmt.Sprintf("%dKB", bytes/KB)
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

// parseByteSize converts human-readable sizes to bytes
// Supports: B, KB, MB, GB (case-insensitive)
func parseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	numStr := s
	unitStr := "B"
	for i, c := range s {
		if c >= '0' && c <= '9' || c == '.' {
			continue
		}
		numStr = s[:i]
		unitStr = s[i:]
		break
	}

	num, err := strconv.ParseFloat(strings.TrimSpace(numStr), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in size '%s': %w", s, err)
	}

	var multiplier int64
	switch strings.TrimSpace(strings.ToUpper(unitStr)) {
	case "B", "":
		multiplier = 1
	case "KB", "K":
		multiplier = 1024
	case "MB", "M":
		multiplier = 1024 * 1024
	case "GB", "G":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unknown size unit '%s' (supported: B, KB, MB, GB)", unitStr)
	}

	return int64(num * float64(multiplier)), nil
}

// GetExecutor returns the executor type (with default "http")
func (t *Test) GetExecutor() string {
	if t.Executor == "" {
		return ExecutorHTTP
	}
	return t.Executor
}

// IsSingleStep returns true if test has exactly one step
func (t *Test) IsSingleStep() bool {
	return len(t.Steps) == 1
}

// GetTestJitter returns the effective jitter config for a test
func (t *Test) GetTestJitter(global JitterConfig) JitterConfig {
	return t.Jitter.GetEffectiveJitter(&global)
}

// GetMethod returns the step method (default GET).
func (s *TestStep) GetMethod() solarnet.Method {
	if s.Method == "" {
		return solarnet.MethodGet
	}
	return s.Method
}

// GetExpectStatus returns the expected HTTP status (default 200).
func (s *TestStep) GetExpectStatus() int {
	if s.ExpectStatus == 0 {
		return 200
	}
	return s.ExpectStatus
}

// GetMaxBody returns how many response bytes are read (default 1MB).
func (s *TestStep) GetMaxBody() ByteSize {
	if s.MaxBody == nil || *s.MaxBody <= 0 {
		return defaultMaxBody
	}
	return *s.MaxBody
}

// TimeoutDuration returns the timeout as a time.Duration
func (s *TestStep) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return defaultStepTimeout
	}
	return d
}

// K6Config holds k6 binary configuration
type K6Config struct {
	BinaryPath   string `yaml:"binary_path"`
	OutputFormat string `yaml:"output_format"`
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IsEnabled returns whether jitter is enabled
func (j *JitterConfig) IsEnabled() bool {
	if j == nil || j.Enabled == nil {
		return false
	}
	return *j.Enabled
}

// GetEffectiveJitter returns the effective jitter config, merging with parent
func (j *JitterConfig) GetEffectiveJitter(parent *JitterConfig) JitterConfig {
	result := JitterConfig{}

	if parent != nil {
		result.Enabled = parent.Enabled
		result.Max = parent.Max
	}

	if j != nil {
		if j.Enabled != nil {
			result.Enabled = j.Enabled
		}
		if j.Max != "" {
			result.Max = j.Max
		}
	}

	return result
}

// ParseMaxJitter parses the max jitter value and returns the duration
// For percentages, scheduleInterval is used to calculate the actual duration
func (j *JitterConfig) ParseMaxJitter(scheduleInterval time.Duration) (time.Duration, error) {
	if j == nil || j.Max == "" {
		return 0, nil
	}

	max := strings.TrimSpace(j.Max)

	if strings.HasSuffix(max, "%") {
		percent, err := strconv.ParseFloat(strings.TrimSuffix(max, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid jitter percentage '%s': %w", max, err)
		}
		if percent < 0 || percent > 100 {
			return 0, fmt.Errorf("jitter percentage must be between 0 and 100, got %v", percent)
		}
		if scheduleInterval <= 0 {
			return 0, fmt.Errorf("cannot use percentage jitter without schedule interval")
		}
		return time.Duration(float64(scheduleInterval) * percent / 100), nil
	}

	return time.ParseDuration(max)
}

// ParseCronInterval estimates the interval between cron executions
// Supports common patterns like "*/5 * * * *" (every 5 min), "0 * * * *" (hourly), etc.
func ParseCronInterval(schedule string) (time.Duration, error) {
	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return 0, fmt.Errorf("invalid cron schedule: %s", schedule)
	}

	minute := parts[0]
	hour := parts[1]

	if strings.HasPrefix(minute, "*/") {
		n, err := strconv.Atoi(strings.TrimPrefix(minute, "*/"))
		if err == nil && n > 0 {
			return time.Duration(n) * time.Minute, nil
		}
	}

	if minute == "0" && strings.HasPrefix(hour, "*/") {
		n, err := strconv.Atoi(strings.TrimPrefix(hour, "*/"))
		if err == nil && n > 0 {
			return time.Duration(n) * time.Hour, nil
		}
	}

	// Fixed minute, any hour = hourly
	if _, err := strconv.Atoi(minute); err == nil && hour == "*" {
		return time.Hour, nil
	}

	// Fixed minute and hour = daily
	if _, err := strconv.Atoi(minute); err == nil {
		if _, err := strconv.Atoi(hour); err == nil {
			return 24 * time.Hour, nil
		}
	}

	// Default: assume 1 minute if we can't determine
	return time.Minute, nil
}

// CredentialsFromEnv reads SOLARNETWORK_HOST, SOLARNETWORK_TOKEN and
// SOLARNETWORK_SECRET.
func CredentialsFromEnv() solarnet.Credentials {
	return solarnet.Credentials{
		Host:   os.Getenv(EnvHost),
		Token:  os.Getenv(EnvToken),
		Secret: os.Getenv(EnvSecret),
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references and
// filling defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	env := CredentialsFromEnv()
	if cfg.SolarNetwork.Host == "" {
		cfg.SolarNetwork.Host = env.Host
	}
	if cfg.SolarNetwork.Host == "" {
		cfg.SolarNetwork.Host = solarnet.DefaultHost
	}
	if cfg.SolarNetwork.Token == "" {
		cfg.SolarNetwork.Token = env.Token
	}
	if cfg.SolarNetwork.Secret == "" {
		cfg.SolarNetwork.Secret = env.Secret
	}
	if cfg.SolarNetwork.Scheme == "" {
		cfg.SolarNetwork.Scheme = "https"
	}
	if cfg.SolarNetwork.Timeout == "" {
		cfg.SolarNetwork.Timeout = "30s"
	}
	if cfg.K6.BinaryPath == "" {
		cfg.K6.BinaryPath = "/usr/local/bin/k6"
	}
	if cfg.K6.OutputFormat == "" {
		cfg.K6.OutputFormat = "json"
	}
	if cfg.Archive.S3.Region == "" {
		cfg.Archive.S3.Region = "us-east-1"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 8080
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate reports every configuration problem found, joined.
func (cfg *Config) Validate() error {
	var errs []error

	if cfg.SolarNetwork.Token == "" || cfg.SolarNetwork.Secret == "" {
		errs = append(errs, errors.New("solarnetwork.token and solarnetwork.secret are required"))
	}
	switch cfg.SolarNetwork.Scheme {
	case "http", "https":
	default:
		errs = append(errs, fmt.Errorf("solarnetwork.scheme must be http or https, got %q", cfg.SolarNetwork.Scheme))
	}

	switch cfg.Archive.Backend {
	case "":
	case ArchiveBackendS3:
		if cfg.Archive.S3.Endpoint == "" || cfg.Archive.S3.AccessKey == "" || cfg.Archive.S3.SecretKey == "" {
			errs = append(errs, errors.New("archive.s3 requires endpoint, access_key and secret_key"))
		}
	case ArchiveBackendStorj:
		if cfg.Archive.Storj.AccessGrant == "" {
			errs = append(errs, errors.New("archive.storj requires access_grant"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend))
	}
	if cfg.Archive.Enabled() && cfg.Archive.Bucket == "" {
		errs = append(errs, errors.New("archive.bucket is required"))
	}

	if _, err := cfg.Jitter.ParseMaxJitter(time.Minute); err != nil {
		errs = append(errs, fmt.Errorf("jitter: %w", err))
	}

	seen := make(map[string]bool, len(cfg.Tests))
	for i := range cfg.Tests {
		test := &cfg.Tests[i]
		if test.Name == "" {
			errs = append(errs, fmt.Errorf("tests[%d]: name is required", i))
		} else if seen[test.Name] {
			errs = append(errs, fmt.Errorf("test %s: duplicate name", test.Name))
		}
		seen[test.Name] = true
		errs = append(errs, test.validate(cfg.Archive.Enabled())...)
	}

	return errors.Join(errs...)
}

func (t *Test) validate(archiveEnabled bool) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("test %s: "+format, append([]any{t.Name}, args...)...))
	}

	if _, err := cron.ParseStandard(t.Schedule); err != nil {
		fail("invalid schedule %q: %v", t.Schedule, err)
	}

	executor := t.GetExecutor()
	switch executor {
	case ExecutorHTTP, ExecutorCurl, ExecutorK6:
	default:
		fail("unknown executor %q", t.Executor)
	}

	if t.Archive && !archiveEnabled {
		fail("archive is set but no archive backend is configured")
	}
	if len(t.Steps) == 0 {
		fail("at least one step is required")
	}

	for i := range t.Steps {
		step := &t.Steps[i]
		if step.Name == "" {
			fail("steps[%d]: name is required", i)
		}
		if step.Method != "" && !step.Method.Valid() {
			fail("step %s: %v: %q", step.Name, solarnet.ErrUnsupportedMethod, string(step.Method))
		}
		if executor == ExecutorK6 {
			if step.Script == "" {
				fail("step %s: k6 steps require a script", step.Name)
			}
			continue
		}
		if !strings.HasPrefix(step.Path, "/") {
			fail("step %s: path must start with /", step.Name)
		}
		if step.Body != nil && !step.GetMethod().AllowsBody() {
			fail("step %s: %s requests cannot carry a body", step.Name, step.GetMethod())
		}
		if step.Jitter != nil {
			if _, err := step.Jitter.ParseMaxJitter(0); err != nil {
				fail("step %s: jitter: %v", step.Name, err)
			}
		}
	}

	if t.Jitter != nil {
		interval, err := ParseCronInterval(t.Schedule)
		if err == nil {
			if _, err := t.Jitter.ParseMaxJitter(interval); err != nil {
				fail("jitter: %v", err)
			}
		}
	}
	return errs
}
