package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ethanadams/solarnet-synthetics/internal/solarnet"
)

const sampleConfig = `
solarnetwork:
  token: ${TEST_SN_TOKEN}
  secret: ${TEST_SN_SECRET}
archive:
  backend: s3
  bucket: probes
  prefix: synthetics
  ttl_seconds: 86400
  s3:
    endpoint: https://gateway.storjshare.io
    access_key: AK
    secret_key: SK
tests:
  - name: datum-list
    schedule: "*/5 * * * *"
    enabled: true
    archive: true
    jitter:
      enabled: true
      max: "10%"
    steps:
      - name: list
        path: /solarquery/api/v1/sec/datum/list
        params:
          nodeId: 123
          sourceId: ["*/**", "/meter/1"]
          aggregation: Day
        max_body: 256KB
        timeout: 30s
  - name: instruction
    schedule: "0 * * * *"
    enabled: true
    executor: curl
    steps:
      - name: add
        method: post
        path: /solaruser/api/v1/sec/instr/add
        expect_status: 201
        body:
          topic: Test
          params:
            - name: a
              value: "1"
  - name: load
    schedule: "0 3 * * *"
    enabled: false
    executor: k6
    steps:
      - name: burst
        script: scripts/burst.js
`

func TestParse(t *testing.T) {
	t.Setenv("TEST_SN_TOKEN", "tok")
	t.Setenv("TEST_SN_SECRET", "sec")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "tok", cfg.SolarNetwork.Token)
	assert.Equal(t, "sec", cfg.SolarNetwork.Secret)
	assert.Equal(t, solarnet.DefaultHost, cfg.SolarNetwork.Host)
	assert.Equal(t, "https", cfg.SolarNetwork.Scheme)
	assert.Equal(t, 30*time.Second, cfg.SolarNetwork.TimeoutDuration())
	assert.Equal(t, 8080, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "us-east-1", cfg.Archive.S3.Region)
	assert.Equal(t, 24*time.Hour, cfg.Archive.TTL())

	require.Len(t, cfg.Tests, 3)

	list := cfg.Tests[0]
	assert.Equal(t, ExecutorHTTP, list.GetExecutor())
	assert.True(t, list.IsSingleStep())
	step := list.Steps[0]
	assert.Equal(t, solarnet.MethodGet, step.GetMethod())
	assert.Equal(t, 200, step.GetExpectStatus())
	assert.Equal(t, ByteSize(256*1024), step.GetMaxBody())
	assert.Equal(t, 30*time.Second, step.TimeoutDuration())
	assert.Equal(t, []string{"*/**", "/meter/1"}, step.Params.Values()["sourceId"])
	assert.Equal(t, "123", step.Params.Values().Get("nodeId"))

	instr := cfg.Tests[1].Steps[0]
	assert.Equal(t, solarnet.MethodPost, instr.GetMethod())
	assert.Equal(t, 201, instr.GetExpectStatus())
	assert.Equal(t, defaultMaxBody, instr.GetMaxBody())
	assert.Equal(t, defaultStepTimeout, instr.TimeoutDuration())
	body, ok := instr.Body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Test", body["topic"])

	assert.Equal(t, ExecutorK6, cfg.Tests[2].GetExecutor())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("solarnetwork:\n  token: a\n  secret: b\n  host: localhost:9000\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", cfg.SolarNetwork.Host)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseCredentialsFromEnv(t *testing.T) {
	t.Setenv(EnvHost, "stage.solarnetwork.net")
	t.Setenv(EnvToken, "env-token")
	t.Setenv(EnvSecret, "env-secret")

	cfg, err := Parse([]byte("solarnetwork:\n  token: file-token\n"))
	require.NoError(t, err)

	assert.Equal(t, "stage.solarnetwork.net", cfg.SolarNetwork.Host)
	assert.Equal(t, "file-token", cfg.SolarNetwork.Token)
	assert.Equal(t, "env-secret", cfg.SolarNetwork.Secret)

	creds := CredentialsFromEnv()
	assert.Equal(t, "env-token", creds.Token)
}

func TestParseRejectsUnknownMethod(t *testing.T) {
	_, err := Parse([]byte(`
tests:
  - name: x
    steps:
      - name: s
        method: trace
        path: /
`))
	assert.ErrorIs(t, err, solarnet.ErrUnsupportedMethod)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			SolarNetwork: SolarNetworkConfig{Token: "t", Secret: "s", Scheme: "https"},
			Tests: []Test{{
				Name:     "nodes",
				Schedule: "*/5 * * * *",
				Enabled:  true,
				Steps:    []TestStep{{Name: "list", Path: "/solarquery/api/v1/sec/nodes"}},
			}},
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing secret",
			mutate:  func(c *Config) { c.SolarNetwork.Secret = "" },
			wantErr: "solarnetwork.token and solarnetwork.secret are required",
		},
		{
			name:    "bad scheme",
			mutate:  func(c *Config) { c.SolarNetwork.Scheme = "ftp" },
			wantErr: "solarnetwork.scheme must be http or https",
		},
		{
			name:    "bad schedule",
			mutate:  func(c *Config) { c.Tests[0].Schedule = "every minute" },
			wantErr: "test nodes: invalid schedule",
		},
		{
			name:    "unknown executor",
			mutate:  func(c *Config) { c.Tests[0].Executor = "uplink" },
			wantErr: `test nodes: unknown executor "uplink"`,
		},
		{
			name:    "no steps",
			mutate:  func(c *Config) { c.Tests[0].Steps = nil },
			wantErr: "test nodes: at least one step is required",
		},
		{
			name:    "relative path",
			mutate:  func(c *Config) { c.Tests[0].Steps[0].Path = "solarquery" },
			wantErr: "step list: path must start with /",
		},
		{
			name:    "body on GET",
			mutate:  func(c *Config) { c.Tests[0].Steps[0].Body = map[string]any{"a": 1} },
			wantErr: "step list: GET requests cannot carry a body",
		},
		{
			name: "k6 without script",
			mutate: func(c *Config) {
				c.Tests[0].Executor = ExecutorK6
			},
			wantErr: "step list: k6 steps require a script",
		},
		{
			name:    "archive without backend",
			mutate:  func(c *Config) { c.Tests[0].Archive = true },
			wantErr: "archive is set but no archive backend is configured",
		},
		{
			name: "s3 archive missing keys",
			mutate: func(c *Config) {
				c.Archive = ArchiveConfig{Backend: ArchiveBackendS3, Bucket: "b"}
			},
			wantErr: "archive.s3 requires endpoint, access_key and secret_key",
		},
		{
			name: "storj archive missing grant",
			mutate: func(c *Config) {
				c.Archive = ArchiveConfig{Backend: ArchiveBackendStorj, Bucket: "b"}
			},
			wantErr: "archive.storj requires access_grant",
		},
		{
			name: "archive missing bucket",
			mutate: func(c *Config) {
				c.Archive = ArchiveConfig{Backend: ArchiveBackendStorj, Storj: StorjConfig{AccessGrant: "g"}}
			},
			wantErr: "archive.bucket is required",
		},
		{
			name:    "unknown archive backend",
			mutate:  func(c *Config) { c.Archive.Backend = "gcs" },
			wantErr: `unknown archive backend "gcs"`,
		},
		{
			name: "duplicate names",
			mutate: func(c *Config) {
				c.Tests = append(c.Tests, c.Tests[0])
			},
			wantErr: "test nodes: duplicate name",
		},
		{
			name: "bad step jitter",
			mutate: func(c *Config) {
				c.Tests[0].Steps[0].Jitter = &JitterConfig{Max: "10%"}
			},
			wantErr: "cannot use percentage jitter without schedule interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSolarNetworkConfigRedacted(t *testing.T) {
	c := SolarNetworkConfig{Host: "h", Token: "t", Secret: "very-secret"}
	for _, format := range []string{"%v", "%+v", "%#v", "%s"} {
		assert.NotContains(t, fmt.Sprintf(format, c), "very-secret")
	}
	assert.Equal(t, "very-secret", c.Credentials().Secret)
}

func TestByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
		str  string
	}{
		{in: "1024", want: 1024, str: "1KB"},
		{in: "512KB", want: 512 * 1024, str: "512KB"},
		{in: "5MB", want: 5 * 1024 * 1024, str: "5MB"},
		{in: "1.5k", want: 1536, str: "1536B"},
		{in: "2G", want: 2 * 1024 * 1024 * 1024, str: "2GB"},
		{in: "100", want: 100, str: "100B"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var bs ByteSize
			require.NoError(t, yaml.Unmarshal([]byte(tt.in), &bs))
			assert.Equal(t, tt.want, bs)
			assert.Equal(t, tt.str, bs.String())
		})
	}

	var bs ByteSize
	assert.Error(t, yaml.Unmarshal([]byte("5TB"), &bs))
	assert.Error(t, yaml.Unmarshal([]byte(`""`), &bs))
}

func TestParamsUnmarshal(t *testing.T) {
	var p Params
	require.NoError(t, yaml.Unmarshal([]byte("a: 1\nb: [x, y]\nc: ''\n"), &p))
	assert.Equal(t, Params{"a": {"1"}, "b": {"x", "y"}, "c": {""}}, p)

	assert.Error(t, yaml.Unmarshal([]byte("- a\n- b\n"), &p))
	assert.Error(t, yaml.Unmarshal([]byte("a: {b: c}\n"), &p))

	assert.Nil(t, Params(nil).Values())
}

func TestJitter(t *testing.T) {
	enabled := true
	disabled := false

	global := JitterConfig{Enabled: &enabled, Max: "30s"}
	test := Test{Jitter: &JitterConfig{Max: "10%"}}

	effective := test.GetTestJitter(global)
	assert.True(t, effective.IsEnabled())
	assert.Equal(t, "10%", effective.Max)

	d, err := effective.ParseMaxJitter(5 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	off := Test{Jitter: &JitterConfig{Enabled: &disabled}}
	offJitter := off.GetTestJitter(global)
	assert.False(t, offJitter.IsEnabled())

	var nilJitter *JitterConfig
	assert.False(t, nilJitter.IsEnabled())
	d, err = nilJitter.ParseMaxJitter(time.Minute)
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = (&JitterConfig{Max: "150%"}).ParseMaxJitter(time.Minute)
	assert.Error(t, err)
	_, err = (&JitterConfig{Max: "soon"}).ParseMaxJitter(time.Minute)
	assert.Error(t, err)
}

func TestParseCronInterval(t *testing.T) {
	tests := []struct {
		schedule string
		want     time.Duration
	}{
		{"*/5 * * * *", 5 * time.Minute},
		{"0 */2 * * *", 2 * time.Hour},
		{"15 * * * *", time.Hour},
		{"30 4 * * *", 24 * time.Hour},
		{"* * * * *", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			got, err := ParseCronInterval(tt.schedule)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseCronInterval("* *")
	assert.Error(t, err)
}
