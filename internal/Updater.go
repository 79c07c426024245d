package internal

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// ManifestDiff is the disjoint change set between two builds: files to
// download (new or content-changed) and files to remove (old-side only).
type ManifestDiff struct {
	ToDownload []FileEntry
	ToRemove   []string
}

// DiffManifests compares two file sets by filename, using content-digest
// equality to decide "changed". When an old-side digest is unavailable the
// file is conservatively re-downloaded.
func DiffManifests(oldManifest, newManifest *GameManifest) ManifestDiff {
	oldFiles := make(map[string]*FileEntry, len(oldManifest.FileList))
	for i := range oldManifest.FileList {
		oldFiles[oldManifest.FileList[i].Filename] = &oldManifest.FileList[i]
	}

	var diff ManifestDiff
	newNames := make(map[string]struct{}, len(newManifest.FileList))

	for i := range newManifest.FileList {
		entry := &newManifest.FileList[i]
		newNames[entry.Filename] = struct{}{}

		oldEntry, existed := oldFiles[entry.Filename]
		switch {
		case !existed:
			diff.ToDownload = append(diff.ToDownload, *entry)
		case len(oldEntry.FileHash) == 0 || len(entry.FileHash) == 0:
			// No digest to compare against: re-download rather than
			// trust stale content.
			diff.ToDownload = append(diff.ToDownload, *entry)
		case !bytes.Equal(oldEntry.FileHash, entry.FileHash):
			diff.ToDownload = append(diff.ToDownload, *entry)
		}
	}

	for name := range oldFiles {
		if _, stillPresent := newNames[name]; !stillPresent {
			diff.ToRemove = append(diff.ToRemove, name)
		}
	}
	return diff
}

// DownloadSize sums the bytes the diff will fetch.
func (d ManifestDiff) DownloadSize() int64 {
	var total int64
	for i := range d.ToDownload {
		total += d.ToDownload[i].FileSize()
	}
	return total
}

// Updater drives a differential update: fetch the new manifest, stage a
// backup of the live install, reconstruct only the changed files, and
// either commit (delete removed files, overwrite the installed record,
// drop the backup) or roll the backup over the live directory. From the
// caller's view the install directory is always fully old or fully new.
type Updater struct {
	Config *Config
	Client *StoreClient

	// OnWrite is forwarded to the file reconstructor.
	OnWrite DelegateWriteBytes
	// OnFileStart fires before each changed file is rebuilt.
	OnFileStart DelegateFileStart
	// OnPlan fires once the change set is known, with the total bytes
	// and file count the update will download.
	OnPlan DelegateUpdatePlan
}

// stagingBackupName derives a collision-safe sibling directory name for
// the pre-update backup of one install.
func stagingBackupName(appId, fromVersion string) string {
	h := xxhash.New()
	fmt.Fprintf(h, "%s$%s", appId, fromVersion)
	return fmt.Sprintf(".%s-backup-%s", hex.EncodeToString(h.Sum(nil)), uuid.NewString()[:8])
}

// Update brings appId to the latest version. It returns the new version
// string, or "" when the installed build is already current.
func (u *Updater) Update(ctx context.Context, cred *Credential, appId string, oldManifest *GameManifest) (string, error) {
	game, err := LoadInstalledGame(u.Config, appId)
	if err != nil {
		return "", err
	}

	newManifest, err := u.Client.GetManifest(ctx, cred, appId)
	if err != nil {
		return "", err
	}
	if newManifest.AppVersion == game.AppVersion {
		PushLogInfo(u, "build already current", "app", appId, "version", game.AppVersion)
		return "", nil
	}

	var diff ManifestDiff
	if oldManifest != nil {
		diff = DiffManifests(oldManifest, newManifest)
	} else {
		// No old-side manifest available: re-download everything the
		// new build names and remove nothing.
		diff = ManifestDiff{ToDownload: newManifest.FileList}
	}

	PushLogInfo(u, "update analysis complete",
		"app", appId,
		"from", game.AppVersion,
		"to", newManifest.AppVersion,
		"download", len(diff.ToDownload),
		"remove", len(diff.ToRemove))

	if len(diff.ToDownload) == 0 && len(diff.ToRemove) == 0 {
		// Version string changed but content did not; just move the record.
		return newManifest.AppVersion, u.commitRecord(game, newManifest)
	}

	if u.OnPlan != nil {
		u.OnPlan(diff.DownloadSize(), len(diff.ToDownload))
	}

	if err := EnsureSpace(game.InstallPath, diff.DownloadSize()); err != nil {
		return "", err
	}

	backupPath := filepath.Join(filepath.Dir(game.InstallPath), stagingBackupName(appId, game.AppVersion))
	if err := copyTree(game.InstallPath, backupPath); err != nil {
		return "", WrapError(KindDisk, err, "failed to stage update backup for %s", appId)
	}
	PushLogInfo(u, "staged rollback backup", "app", appId, "path", backupPath)

	if err := u.applyChangedFiles(ctx, newManifest, diff, game.InstallPath); err != nil {
		if rbErr := u.rollback(game.InstallPath, backupPath); rbErr != nil {
			PushLogError(u, "rollback failed", "app", appId, "error", rbErr)
			return "", WrapError(KindDisk, rbErr, "update failed and rollback failed: %v", err)
		}
		PushLogWarning(u, "update failed, previous installation restored", "app", appId)
		return "", err
	}

	for _, name := range diff.ToRemove {
		path := filepath.Join(game.InstallPath, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			PushLogWarning(u, "failed to remove obsolete file", "file", name, "error", err)
		}
	}

	if err := u.commitRecord(game, newManifest); err != nil {
		return "", err
	}

	if err := os.RemoveAll(backupPath); err != nil {
		PushLogWarning(u, "failed to discard update backup", "path", backupPath, "error", err)
	}

	PushLogInfo(u, "update complete", "app", appId, "version", newManifest.AppVersion)
	return newManifest.AppVersion, nil
}

func (u *Updater) applyChangedFiles(ctx context.Context, manifest *GameManifest, diff ManifestDiff, installPath string) error {
	reconstructor := &FileReconstructor{
		Source:  u.Client,
		OnWrite: u.OnWrite,
	}
	for i := range diff.ToDownload {
		entry := &diff.ToDownload[i]
		if u.OnFileStart != nil {
			u.OnFileStart(entry.Filename, entry.FileSize())
		}
		destPath := filepath.Join(installPath, entry.Filename)
		if err := reconstructor.ReconstructFile(ctx, destPath, entry, manifest); err != nil {
			return err
		}
	}
	return nil
}

func (u *Updater) commitRecord(game *InstalledGame, manifest *GameManifest) error {
	game.AppVersion = manifest.AppVersion
	game.Executable = manifest.LaunchExe
	if err := game.Save(u.Config); err != nil {
		return err
	}
	if err := SaveInstalledManifest(u.Config, game.AppName, manifest); err != nil {
		PushLogWarning(u, "failed to persist installed manifest", "app", game.AppName, "error", err)
	}
	return nil
}

// rollback restores the staged backup over the live install directory.
func (u *Updater) rollback(installPath, backupPath string) error {
	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("backup %s is missing: %w", backupPath, err)
	}
	if err := os.RemoveAll(installPath); err != nil {
		return err
	}
	return os.Rename(backupPath, installPath)
}

// copyTree duplicates src into dst, preserving file modes. Used for the
// pre-update backup; the copy keeps the live directory untouched while
// changed files are rebuilt in place.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
