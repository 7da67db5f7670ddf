package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmined/vaultsync/internal/blob"
	"github.com/openmined/vaultsync/internal/sync"
	"github.com/openmined/vaultsync/internal/utils"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix      = "VAULTSYNC"
	ConfigFileName = "config"

	DefaultConcurrency      = 5
	DefaultInterval         = 5 * time.Minute
	DefaultConfigDir        = ".obsidian"
	DefaultControlPlaneAddr = "127.0.0.1:7938"
)

var (
	home, _            = os.UserHomeDir()
	DefaultHomeDir     = filepath.Join(home, ".vaultsync")
	DefaultConfigPath  = filepath.Join(DefaultHomeDir, ConfigFileName+".yaml")
	DefaultLogFilePath = filepath.Join(DefaultHomeDir, "logs", "vaultsync.log")
)

var ErrNoVault = errors.New("vault directory is not set")

type SyncConfig struct {
	// ConfigDir is the vault's settings folder, synced only with SyncConfigDir
	ConfigDir           string   `mapstructure:"config_dir" yaml:"config_dir"`
	SyncConfigDir       bool     `mapstructure:"sync_config_dir" yaml:"sync_config_dir"`
	SyncUnderscoreItems bool     `mapstructure:"sync_underscore_items" yaml:"sync_underscore_items"`
	IgnorePaths         []string `mapstructure:"ignore_paths" yaml:"ignore_paths,omitempty"`
	SkipSizeLargerThan  int64    `mapstructure:"skip_size_larger_than" yaml:"skip_size_larger_than,omitempty"`
	EmptyFolder         string   `mapstructure:"empty_folder" yaml:"empty_folder"`
	ConflictAction      string   `mapstructure:"conflict_action" yaml:"conflict_action"`
}

type ControlPlaneConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Token   string `mapstructure:"token" yaml:"token,omitempty"`
}

type Config struct {
	VaultDir     string             `mapstructure:"vault_dir" yaml:"vault_dir"`
	Password     string             `mapstructure:"password" yaml:"password,omitempty"`
	JournalPath  string             `mapstructure:"journal_path" yaml:"journal_path,omitempty"`
	Concurrency  int                `mapstructure:"concurrency" yaml:"concurrency"`
	Interval     time.Duration      `mapstructure:"interval" yaml:"interval"`
	Sync         SyncConfig         `mapstructure:"sync" yaml:"sync"`
	Remote       blob.Config        `mapstructure:"remote" yaml:"remote"`
	ControlPlane ControlPlaneConfig `mapstructure:"control_plane" yaml:"control_plane"`
	Path         string             `mapstructure:"-" yaml:"-"`
}

// SetDefaults registers every key so environment variables reach nested fields.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("vault_dir", "")
	v.SetDefault("password", "")
	v.SetDefault("journal_path", "")
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("interval", DefaultInterval)

	v.SetDefault("sync.config_dir", DefaultConfigDir)
	v.SetDefault("sync.sync_config_dir", false)
	v.SetDefault("sync.sync_underscore_items", false)
	v.SetDefault("sync.ignore_paths", []string{})
	v.SetDefault("sync.skip_size_larger_than", 0)
	v.SetDefault("sync.empty_folder", string(sync.EmptyFolderSkip))
	v.SetDefault("sync.conflict_action", string(sync.ConflictKeepNewer))

	v.SetDefault("remote.type", "")
	for _, key := range []string{"bucket", "region", "access_key", "secret_key", "endpoint", "prefix"} {
		v.SetDefault("remote.s3."+key, "")
	}
	v.SetDefault("remote.s3.use_accelerate", false)
	for _, key := range []string{"endpoint", "bucket", "access_key", "secret_key", "prefix"} {
		v.SetDefault("remote.minio."+key, "")
	}
	v.SetDefault("remote.minio.use_ssl", false)
	for _, key := range []string{"host", "user", "password", "private_key_path", "known_hosts_path", "root"} {
		v.SetDefault("remote.sftp."+key, "")
	}
	v.SetDefault("remote.sftp.port", 0)
	v.SetDefault("remote.sftp.timeout", time.Duration(0))
	v.SetDefault("remote.fs.root", "")

	v.SetDefault("control_plane.enabled", false)
	v.SetDefault("control_plane.addr", DefaultControlPlaneAddr)
	v.SetDefault("control_plane.token", "")
}

// BindEnv makes VAULTSYNC_REMOTE_S3_BUCKET reach remote.s3.bucket.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes whatever v has read. The result is not validated.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	return &cfg, nil
}

// LoadFromFile reads a single config file without flags or environment.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config read %q: %w", path, err)
	}
	return Load(v)
}

// Validate resolves paths and fills in what the user left empty.
func (c *Config) Validate() error {
	if c.VaultDir == "" {
		return ErrNoVault
	}
	vaultDir, err := utils.ResolvePath(c.VaultDir)
	if err != nil {
		return fmt.Errorf("vault dir: %w", err)
	}
	c.VaultDir = vaultDir

	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}

	if c.Sync.EmptyFolder == "" {
		c.Sync.EmptyFolder = string(sync.EmptyFolderSkip)
	}
	if err := sync.EmptyFolderPolicy(c.Sync.EmptyFolder).Validate(); err != nil {
		return err
	}
	if c.Sync.ConflictAction == "" {
		c.Sync.ConflictAction = string(sync.ConflictKeepNewer)
	}
	if err := sync.ConflictAction(c.Sync.ConflictAction).Validate(); err != nil {
		return err
	}
	if _, err := sync.NewNameFilter(c.filterOptions()); err != nil {
		return err
	}

	if err := c.Remote.Validate(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}

	if c.JournalPath == "" {
		c.JournalPath = DefaultJournalPath(c.VaultDir)
	} else if c.JournalPath, err = utils.ResolvePath(c.JournalPath); err != nil {
		return fmt.Errorf("journal path: %w", err)
	}

	if c.ControlPlane.Enabled && c.ControlPlane.Addr == "" {
		c.ControlPlane.Addr = DefaultControlPlaneAddr
	}

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}
	return nil
}

// DefaultJournalPath keeps one history database per vault outside of the vault itself.
func DefaultJournalPath(vaultDir string) string {
	sum := sha256.Sum256([]byte(vaultDir))
	name := filepath.Base(vaultDir) + "-" + hex.EncodeToString(sum[:])[:12] + ".db"
	return filepath.Join(DefaultHomeDir, "journal", name)
}

func (c *Config) LockPath() string {
	return c.JournalPath + ".lock"
}

func (c *Config) filterOptions() sync.FilterOptions {
	return sync.FilterOptions{
		SyncConfigDir:       c.Sync.SyncConfigDir,
		ConfigDir:           c.Sync.ConfigDir,
		SyncUnderscoreItems: c.Sync.SyncUnderscoreItems,
		IgnorePaths:         c.Sync.IgnorePaths,
	}
}

// SyncerOptions maps the config onto the sync pipeline. Call it after Validate.
func (c *Config) SyncerOptions(dryRun bool) sync.SyncerOptions {
	return sync.SyncerOptions{
		Filter: c.filterOptions(),
		Decide: sync.DecideOptions{
			EmptyFolder:        sync.EmptyFolderPolicy(c.Sync.EmptyFolder),
			SkipSizeLargerThan: c.Sync.SkipSizeLargerThan,
			ConflictAction:     sync.ConflictAction(c.Sync.ConflictAction),
		},
		Password:    c.Password,
		Concurrency: c.Concurrency,
		DryRun:      dryRun,
		LockPath:    c.LockPath(),
	}
}

// Save writes the config as yaml. The file may hold secrets so it is private to the user.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// LogValues are the settings worth printing at startup, secrets masked.
func (c *Config) LogValues() []any {
	return []any{
		"vault", c.VaultDir,
		"remote", c.Remote.Type,
		"password", utils.MaskSecret(c.Password, 0),
		"journal", c.JournalPath,
		"concurrency", c.Concurrency,
		"conflict", c.Sync.ConflictAction,
		"emptyFolder", c.Sync.EmptyFolder,
	}
}
