package internal

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v2"
)

// RequestTimeout bounds each individual HTTP call, independent of the
// retry ceiling.
const RequestTimeout = 30 * time.Second

// Config holds launcher-wide settings. It is loaded from a YAML file in
// the data directory; missing fields fall back to defaults.
type Config struct {
	InstallDir      string `yaml:"install_dir"`
	DataDir         string `yaml:"data_dir"`
	CdnBaseUrl      string `yaml:"cdn_base_url"`
	LogLevel        string `yaml:"log_level"`
	DownloadThreads int    `yaml:"download_threads"`
	AutoSyncSaves   bool   `yaml:"auto_sync_saves"`
}

// DefaultConfig returns a config rooted under dataDir.
func DefaultConfig(dataDir string) *Config {
	return &Config{
		InstallDir:      filepath.Join(dataDir, "games"),
		DataDir:         dataDir,
		CdnBaseUrl:      "https://download1.cdn.example.net/Builds",
		LogLevel:        "info",
		DownloadThreads: min(8, runtime.NumCPU()),
		AutoSyncSaves:   false,
	}
}

// LoadConfig reads the config file at path. A missing file yields the
// defaults; a malformed file is a fatal config error.
func LoadConfig(path string, dataDir string) (*Config, error) {
	cfg := DefaultConfig(dataDir)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, WrapError(KindConfig, err, "failed to read config file %s", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, WrapError(KindConfig, err, "failed to parse config file %s", path)
	}

	if cfg.InstallDir == "" {
		return nil, NewError(KindConfig, "install_dir must not be empty")
	}
	if cfg.DownloadThreads <= 0 {
		cfg.DownloadThreads = min(8, runtime.NumCPU())
	}

	return cfg, nil
}

// Save writes the config as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return WrapError(KindConfig, err, "failed to encode config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return WrapError(KindDisk, err, "failed to create config directory")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return WrapError(KindDisk, err, "failed to write config file %s", path)
	}
	return nil
}

// InstalledDir is where durable installed records live.
func (c *Config) InstalledDir() string {
	return filepath.Join(c.DataDir, "installed")
}

// GameInstallPath is the install directory for one app.
func (c *Config) GameInstallPath(appId string) string {
	return filepath.Join(c.InstallDir, appId)
}

// SavesPath is the local save directory for one app.
func (c *Config) SavesPath(appId string) string {
	return filepath.Join(c.GameInstallPath(appId), "saves")
}
