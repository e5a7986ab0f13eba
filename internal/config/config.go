// Package config manages DPP configuration and the .dpp directory structure.
// It handles loading, saving, and initializing the workspace configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/kilupskalvis/dpp/internal/store"
	"github.com/pelletier/go-toml/v2"
)

const (
	DPPDir       = ".dpp"
	ConfigFile   = "config"
	DatabaseFile = "dpp.db"
)

// Config represents the DPP configuration
type Config struct {
	// Identity is the hex address used as caller for local writes.
	Identity string        `toml:"identity"`
	Counter  string        `toml:"counter"` // "sequence" or "clock"
	Store    StoreConfig   `toml:"store"`
	Remote   RemoteConfig  `toml:"remote"`
	Publish  PublishConfig `toml:"publish"`
	path     string        // path to .dpp directory
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path,omitempty"` // relative paths resolve inside .dpp
	DSN     string `toml:"dsn,omitempty"`
}

// RemoteConfig points the CLI at a dpp-server instead of the local store.
type RemoteConfig struct {
	URL   string `toml:"url,omitempty"`
	Token string `toml:"token,omitempty"`
}

// PublishConfig configures where dataset files are uploaded before registration.
type PublishConfig struct {
	Target     string `toml:"target,omitempty"` // ipfs, s3 or dir
	IPFSAPI    string `toml:"ipfs_api,omitempty"`
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`
	Dir        string `toml:"dir,omitempty"`
}

// FindDPPRoot finds the .dpp directory by walking up from dir
func FindDPPRoot(dir string) (string, error) {
	for {
		dppPath := filepath.Join(dir, DPPDir)
		if info, err := os.Stat(dppPath); err == nil && info.IsDir() {
			return dppPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a dpp workspace (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration from the nearest .dpp directory above the
// current directory
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	dppPath, err := FindDPPRoot(cwd)
	if err != nil {
		return nil, err
	}
	return LoadFrom(dppPath)
}

// LoadFrom loads the configuration stored in a .dpp directory
func LoadFrom(dppPath string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dppPath, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.path = dppPath
	return &cfg, nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(c.path, ConfigFile), data, 0644)
}

// DPPPath returns the path to the .dpp directory
func (c *Config) DPPPath() string {
	return c.path
}

// IdentityAddress parses the configured identity.
func (c *Config) IdentityAddress() (models.Address, error) {
	return models.ParseAddress(c.Identity)
}

// StoreOptions resolves the store settings against the .dpp directory.
func (c *Config) StoreOptions() store.Options {
	opts := store.Options{Backend: c.Store.Backend, Path: c.Store.Path, DSN: c.Store.DSN}
	if opts.Backend == "" {
		opts.Backend = store.BackendBolt
	}
	if opts.Path == "" {
		switch opts.Backend {
		case store.BackendLevelDB:
			opts.Path = "leveldb"
		case store.BackendSQLite:
			opts.Path = "dpp.sqlite"
		default:
			opts.Path = DatabaseFile
		}
	}
	if !filepath.IsAbs(opts.Path) {
		opts.Path = filepath.Join(c.path, opts.Path)
	}
	return opts
}

// IsRemote reports whether commands should go through a dpp-server.
func (c *Config) IsRemote() bool {
	return c.Remote.URL != ""
}

// Initialize creates a new .dpp directory inside dir
func Initialize(dir string, identity string) (*Config, error) {
	if _, err := models.ParseAddress(identity); err != nil {
		return nil, err
	}

	dppPath := filepath.Join(dir, DPPDir)

	// Check if already initialized
	if _, err := os.Stat(dppPath); err == nil {
		return nil, fmt.Errorf("dpp workspace already exists")
	}

	if err := os.MkdirAll(dppPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .dpp directory: %w", err)
	}

	cfg := &Config{
		Identity: common.HexToAddress(identity).Hex(),
		Counter:  "sequence",
		Store:    StoreConfig{Backend: store.BackendBolt},
		path:     dppPath,
	}

	if err := cfg.Save(); err != nil {
		// Cleanup on failure
		os.RemoveAll(dppPath)
		return nil, err
	}

	return cfg, nil
}
