// Package config holds the tunables of the execution engine and loads them
// from TOML files.
package config

import (
	"math/bits"
	"strings"

	"setexec/pkg/dberror"
	"setexec/pkg/logging"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
)

const (
	DefaultSetOperationBufferSize = 16 << 20
	DefaultMaxChunkFiles          = 128
	DefaultRowEstimateMultiplier  = 8
	DefaultRowStoreMemoryLimit    = 64 << 20
)

// ByteSize is a byte count written in configuration files as a human string
// such as "16MiB" or "512 KB".
type ByteSize int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := humanize.ParseBytes(strings.TrimSpace(string(text)))
	if err != nil {
		return dberror.InvalidConfig("bad byte size %q: %v", text, err)
	}
	*b = ByteSize(n)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Config is the execution configuration shared by every materialization of
// one session.
type Config struct {
	// SetOperationBufferSize bounds the arena of the hash deduplication map.
	SetOperationBufferSize ByteSize `toml:"set_operation_buffer_size"`

	// MaxChunkFiles caps the number of chunk-file pairs open at once. Must be
	// a power of two.
	MaxChunkFiles int `toml:"max_chunk_files"`

	// RowEstimateMultiplier scales the rows seen before the first overflow
	// when the planner estimate is missing or implausible.
	RowEstimateMultiplier int `toml:"row_estimate_multiplier"`

	// TertiaryHashSeed is mixed into the per-materialization chunk seed.
	TertiaryHashSeed uint64 `toml:"tertiary_hash_seed"`

	// TempDir is where chunk files are created. Empty means os.TempDir.
	TempDir string `toml:"temp_dir"`

	// CompressChunks snappy-compresses chunk records.
	CompressChunks bool `toml:"compress_chunks"`

	// RowStoreMemoryLimit is the in-memory size of the output row store
	// before it is promoted to a bbolt file.
	RowStoreMemoryLimit ByteSize `toml:"row_store_memory_limit"`

	Logging logging.Config `toml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		SetOperationBufferSize: DefaultSetOperationBufferSize,
		MaxChunkFiles:          DefaultMaxChunkFiles,
		RowEstimateMultiplier:  DefaultRowEstimateMultiplier,
		RowStoreMemoryLimit:    DefaultRowStoreMemoryLimit,
		Logging: logging.Config{
			Level:      logging.LevelInfo,
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads a TOML file over the defaults and validates the result. Unknown
// keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, dberror.Wrap(err, dberror.CodeInvalidConfig, "config.Load", "config")
	}
	return finish(cfg, md)
}

// Parse is Load for an in-memory document.
func Parse(doc string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(doc, cfg)
	if err != nil {
		return nil, dberror.Wrap(err, dberror.CodeInvalidConfig, "config.Parse", "config")
	}
	return finish(cfg, md)
}

func finish(cfg *Config, md toml.MetaData) (*Config, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, dberror.InvalidConfig("unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field for a usable value.
func (c *Config) Validate() error {
	if c.SetOperationBufferSize <= 0 {
		return dberror.InvalidConfig("set_operation_buffer_size must be positive, got %d", c.SetOperationBufferSize)
	}
	if c.MaxChunkFiles <= 0 || bits.OnesCount(uint(c.MaxChunkFiles)) != 1 {
		return dberror.InvalidConfig("max_chunk_files must be a power of two, got %d", c.MaxChunkFiles)
	}
	if c.RowEstimateMultiplier < 1 {
		return dberror.InvalidConfig("row_estimate_multiplier must be at least 1, got %d", c.RowEstimateMultiplier)
	}
	if c.RowStoreMemoryLimit <= 0 {
		return dberror.InvalidConfig("row_store_memory_limit must be positive, got %d", c.RowStoreMemoryLimit)
	}
	return nil
}
