package model

import (
	"fmt"
	"io"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

// Enum helpers (optional).
const (
	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version  int            `json:"version"` // fixed 0 for now
	Server   Server         `json:"server"`
	Resolver ResolverConfig `json:"resolver"`
	Status   StoreConfig    `json:"status"`
	Service  Service        `json:"service"`
}

// Server holds the HTTP surface settings.
type Server struct {
	Listen    string `json:"listen"`
	PublicURL string `json:"publicUrl,omitempty"` // base of statusUrl/cancelUrl
	CORS      bool   `json:"cors"`
}

// ResolverConfig points at the external build-resolution engine.
type ResolverConfig struct {
	URL     string `json:"url"`
	Timeout string `json:"timeout"` // time.ParseDuration syntax
}

// StoreConfig tunes the job status store.
type StoreConfig struct {
	TTL string `json:"ttl"` // measured from the last write
}

// Service holds logging settings.
type Service struct {
	Log     string `json:"log"` // "stderr" | "stdout" | "discard"
	Verbose bool   `json:"verbose"`
}

// StatusTTL parses the configured time-to-live.
func (c Config) StatusTTL() (time.Duration, error) {
	var d Duration
	if err := d.UnmarshalText([]byte(c.Status.TTL)); err != nil {
		return 0, fmt.Errorf("parsing status.ttl: %w", err)
	}
	return d.Duration, nil
}

// ResolverTimeout parses the configured per-request timeout.
func (c Config) ResolverTimeout() (time.Duration, error) {
	var d Duration
	if err := d.UnmarshalText([]byte(c.Resolver.Timeout)); err != nil {
		return 0, fmt.Errorf("parsing resolver.timeout: %w", err)
	}
	return d.Duration, nil
}

// DefaultConfig returns the schema defaults with the given resolver URL.
func DefaultConfig(resolverURL string) Config {
	return Config{
		Version: 0,
		Server:  Server{Listen: ":8080", CORS: true},
		Resolver: ResolverConfig{
			URL:     resolverURL,
			Timeout: "15m",
		},
		Status:  StoreConfig{TTL: "24h"},
		Service: Service{Log: LogStderr},
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}

	return out, nil
}
