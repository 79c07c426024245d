package internal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// InstalledGame is the durable record of a completed installation: one
// JSON file per app id under the data directory, created at the end of a
// successful install, overwritten on a successful update, deleted on
// uninstall.
type InstalledGame struct {
	AppName     string `json:"app_name"`
	AppTitle    string `json:"app_title"`
	AppVersion  string `json:"app_version"`
	InstallPath string `json:"install_path"`
	Executable  string `json:"executable"`
}

func recordPath(cfg *Config, appId string) string {
	return filepath.Join(cfg.InstalledDir(), appId+".json")
}

func installedManifestPath(cfg *Config, appId string) string {
	return filepath.Join(cfg.InstalledDir(), appId+".manifest.json")
}

// SaveInstalledManifest persists the manifest an install or update was
// built from, next to the installed record. Updates diff against it to
// skip unchanged files.
func SaveInstalledManifest(cfg *Config, appId string, m *GameManifest) error {
	if err := os.MkdirAll(cfg.InstalledDir(), 0755); err != nil {
		return WrapError(KindDisk, err, "failed to create installed-records directory")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return WrapError(KindDisk, err, "failed to encode installed manifest for %s", appId)
	}
	if err := os.WriteFile(installedManifestPath(cfg, appId), data, 0644); err != nil {
		return WrapError(KindDisk, err, "failed to write installed manifest for %s", appId)
	}
	return nil
}

// LoadInstalledManifest reads the persisted manifest for appId, failing
// with a not-found error when none exists. An unreadable manifest is also
// not-found: the caller falls back to a full re-download either way.
func LoadInstalledManifest(cfg *Config, appId string) (*GameManifest, error) {
	data, err := os.ReadFile(installedManifestPath(cfg, appId))
	if err != nil {
		return nil, NewError(KindNotFound, "no installed manifest for %s", appId)
	}
	var m GameManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, NewError(KindNotFound, "unreadable installed manifest for %s", appId)
	}
	return &m, nil
}

// Save persists the record, replacing any previous one for the app id.
func (g *InstalledGame) Save(cfg *Config) error {
	if err := os.MkdirAll(cfg.InstalledDir(), 0755); err != nil {
		return WrapError(KindDisk, err, "failed to create installed-records directory")
	}
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return WrapError(KindDisk, err, "failed to encode installed record for %s", g.AppName)
	}
	if err := os.WriteFile(recordPath(cfg, g.AppName), data, 0644); err != nil {
		return WrapError(KindDisk, err, "failed to write installed record for %s", g.AppName)
	}
	return nil
}

// LoadInstalledGame reads the record for appId, failing with a not-found
// error when none exists.
func LoadInstalledGame(cfg *Config, appId string) (*InstalledGame, error) {
	data, err := os.ReadFile(recordPath(cfg, appId))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewError(KindNotFound, "game %s is not installed", appId)
		}
		return nil, WrapError(KindDisk, err, "failed to read installed record for %s", appId)
	}

	var game InstalledGame
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, WrapError(KindDisk, err, "corrupt installed record for %s", appId)
	}
	return &game, nil
}

// ListInstalledGames reads every record in the data directory, skipping
// unreadable or corrupt entries.
func ListInstalledGames(cfg *Config) ([]*InstalledGame, error) {
	entries, err := os.ReadDir(cfg.InstalledDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, WrapError(KindDisk, err, "failed to list installed records")
	}

	var games []*InstalledGame
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") ||
			strings.HasSuffix(entry.Name(), ".manifest.json") {
			continue
		}
		appId := strings.TrimSuffix(entry.Name(), ".json")
		game, err := LoadInstalledGame(cfg, appId)
		if err != nil {
			PushLogWarning(nil, "skipping unreadable installed record", "file", entry.Name(), "error", err)
			continue
		}
		games = append(games, game)
	}
	return games, nil
}

// Delete removes the record and the persisted manifest; missing files are
// not an error.
func (g *InstalledGame) Delete(cfg *Config) error {
	err := os.Remove(recordPath(cfg, g.AppName))
	if err != nil && !os.IsNotExist(err) {
		return WrapError(KindDisk, err, "failed to delete installed record for %s", g.AppName)
	}
	err = os.Remove(installedManifestPath(cfg, g.AppName))
	if err != nil && !os.IsNotExist(err) {
		return WrapError(KindDisk, err, "failed to delete installed manifest for %s", g.AppName)
	}
	return nil
}
