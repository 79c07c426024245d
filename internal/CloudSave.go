package internal

import (
	"context"
	"os"
	"path/filepath"
)

// ConflictPolicy decides what happens when a remote save collides with a
// local file of the same name.
type ConflictPolicy int

const (
	// ConflictAsk defers to the ConflictFunc callback (interactive flows).
	ConflictAsk ConflictPolicy = iota
	// ConflictKeepLocal leaves the local file untouched.
	ConflictKeepLocal
	// ConflictPreferRemote backs up the local file, then overwrites it
	// with the remote version. Used by launch-time background sync.
	ConflictPreferRemote
	// ConflictSkip skips the entry entirely.
	ConflictSkip
)

// ConflictFunc resolves one conflict when the policy is ConflictAsk. It
// receives the remote entry and the local file's metadata and returns one
// of the non-Ask policies.
type ConflictFunc func(entry CloudSaveEntry, localInfo os.FileInfo) ConflictPolicy

// CloudSaveSynchronizer moves save files between the local saves directory
// and the remote store, reusing the client's retry machinery for every
// transfer.
type CloudSaveSynchronizer struct {
	Config *Config
	Client *StoreClient
	Policy ConflictPolicy
	OnAsk  ConflictFunc
}

// resolveConflict returns the effective policy for one entry and whether
// it was chosen interactively through the OnAsk callback.
func (s *CloudSaveSynchronizer) resolveConflict(entry CloudSaveEntry, localInfo os.FileInfo) (ConflictPolicy, bool) {
	policy := s.Policy
	if policy == ConflictAsk {
		if s.OnAsk == nil {
			// No way to ask: skipping is the only safe default.
			return ConflictSkip, false
		}
		policy = s.OnAsk(entry, localInfo)
		if policy == ConflictAsk {
			policy = ConflictSkip
		}
		return policy, true
	}
	return policy, false
}

// Download lists the remote save entries for appId and brings the local
// saves directory up to date: no local file means an unconditional
// download; a local file of the same name is a conflict handled per
// policy, with the local preserved as a .backup copy before an overwrite.
func (s *CloudSaveSynchronizer) Download(ctx context.Context, cred *Credential, appId string) error {
	entries, err := s.Client.ListCloudSaves(ctx, cred, appId)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		PushLogInfo(s, "no cloud saves found", "app", appId)
		return nil
	}

	savesDir := s.Config.SavesPath(appId)
	if err := os.MkdirAll(savesDir, 0755); err != nil {
		return WrapError(KindDisk, err, "failed to create saves directory for %s", appId)
	}

	for _, entry := range entries {
		localPath := filepath.Join(savesDir, entry.Filename)

		localInfo, statErr := os.Stat(localPath)
		if statErr == nil {
			policy, chosen := s.resolveConflict(entry, localInfo)

			// Under the configured background PreferRemote, a local file
			// newer than a dated remote copy wins. An explicit interactive
			// choice to take the remote copy is honored unconditionally.
			if policy == ConflictPreferRemote && !chosen && !entry.UploadedAt.IsZero() &&
				localInfo.ModTime().After(entry.UploadedAt) {
				PushLogInfo(s, "local save is newer, keeping it", "file", entry.Filename)
				continue
			}

			switch policy {
			case ConflictKeepLocal:
				PushLogInfo(s, "keeping local save", "file", entry.Filename)
				continue
			case ConflictSkip:
				PushLogInfo(s, "skipping save", "file", entry.Filename)
				continue
			case ConflictPreferRemote:
				backupPath := localPath + ".backup"
				if err := copyFile(localPath, backupPath, localInfo.Mode().Perm()); err != nil {
					return WrapError(KindDisk, err, "failed to back up local save %s", entry.Filename)
				}
				PushLogInfo(s, "backed up local save", "file", entry.Filename)
			}
		}

		data, err := s.Client.DownloadCloudSave(ctx, cred, appId, entry.ID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(localPath, data, 0644); err != nil {
			return WrapError(KindDisk, err, "failed to write save %s", entry.Filename)
		}
		PushLogInfo(s, "downloaded cloud save", "file", entry.Filename, "bytes", len(data))
	}
	return nil
}

// Upload walks the local saves directory and pushes every regular file,
// independent of remote state; the remote side is last-writer-wins.
func (s *CloudSaveSynchronizer) Upload(ctx context.Context, cred *Credential, appId string) (int, error) {
	savesDir := s.Config.SavesPath(appId)

	dirEntries, err := os.ReadDir(savesDir)
	if err != nil {
		if os.IsNotExist(err) {
			PushLogInfo(s, "no local saves to upload", "app", appId)
			return 0, nil
		}
		return 0, WrapError(KindDisk, err, "failed to read saves directory for %s", appId)
	}

	uploaded := 0
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}
		info, err := dirEntry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		path := filepath.Join(savesDir, dirEntry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return uploaded, WrapError(KindDisk, err, "failed to read save %s", dirEntry.Name())
		}

		if err := s.Client.UploadCloudSave(ctx, cred, appId, dirEntry.Name(), data); err != nil {
			return uploaded, err
		}
		uploaded++
		PushLogInfo(s, "uploaded save", "file", dirEntry.Name(), "bytes", len(data))
	}
	return uploaded, nil
}
