package internal

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// GameManager orchestrates installs, updates, uninstalls, launches and
// cloud-save syncs. The install directory of an app is exclusively owned
// by one in-flight operation; the manager enforces that with a per-app
// single-flight set rather than pushing locking into the core components.
type GameManager struct {
	Config *Config
	Auth   Authenticator
	Client *StoreClient

	// Progress is populated for the duration of an install or update
	// and nil otherwise.
	progressMu sync.Mutex
	progress   *ProgressTracker

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewGameManager wires an orchestrator over the given collaborators.
func NewGameManager(cfg *Config, auth Authenticator, client *StoreClient) *GameManager {
	return &GameManager{
		Config:   cfg,
		Auth:     auth,
		Client:   client,
		inflight: make(map[string]struct{}),
	}
}

// acquire marks appId busy, failing when another operation owns it.
func (m *GameManager) acquire(appId string) error {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	if _, busy := m.inflight[appId]; busy {
		return NewError(KindConfig, "another operation is already running for %s", appId)
	}
	m.inflight[appId] = struct{}{}
	return nil
}

func (m *GameManager) release(appId string) {
	m.inflightMu.Lock()
	delete(m.inflight, appId)
	m.inflightMu.Unlock()
}

// Progress returns a snapshot of the in-flight operation, or false when
// nothing is running.
func (m *GameManager) Progress() (ProgressSnapshot, bool) {
	m.progressMu.Lock()
	defer m.progressMu.Unlock()
	if m.progress == nil {
		return ProgressSnapshot{}, false
	}
	return m.progress.Snapshot(), true
}

func (m *GameManager) setProgress(t *ProgressTracker) {
	m.progressMu.Lock()
	m.progress = t
	m.progressMu.Unlock()
}

// Install downloads and reconstructs every file of the latest build of
// appId, then writes the durable installed record. Files are processed by
// a bounded worker pool; the chunk loop inside each file is sequential.
func (m *GameManager) Install(ctx context.Context, appId string) error {
	if err := m.acquire(appId); err != nil {
		return err
	}
	defer m.release(appId)

	cred, err := m.Auth.CurrentToken()
	if err != nil {
		return err
	}

	manifest, err := m.Client.GetManifest(ctx, cred, appId)
	if err != nil {
		return err
	}
	PushLogInfo(m, "starting installation",
		"app", appId, "version", manifest.AppVersion, "files", len(manifest.FileList))

	installPath := m.Config.GameInstallPath(appId)
	if manifest.BuildSize > 0 {
		if err := EnsureSpace(installPath, manifest.BuildSize); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(installPath, 0755); err != nil {
		return WrapError(KindDisk, err, "failed to create install directory %s", installPath)
	}

	tracker := NewProgressTracker(manifest.TotalFileSize(), len(manifest.FileList))
	m.setProgress(tracker)
	defer m.setProgress(nil)

	if err := m.downloadFiles(ctx, manifest, installPath, tracker); err != nil {
		return err
	}

	game := &InstalledGame{
		AppName:     appId,
		AppTitle:    manifest.AppName,
		AppVersion:  manifest.AppVersion,
		InstallPath: installPath,
		Executable:  manifest.LaunchExe,
	}
	if err := game.Save(m.Config); err != nil {
		return err
	}
	// Losing the persisted manifest only costs the next update its diff,
	// so a write failure downgrades to a warning.
	if err := SaveInstalledManifest(m.Config, appId, manifest); err != nil {
		PushLogWarning(m, "failed to persist installed manifest", "app", appId, "error", err)
	}

	PushLogInfo(m, "installation complete", "app", appId, "version", manifest.AppVersion)
	return nil
}

// downloadFiles reconstructs every manifest file using a semaphore-bounded
// pool. Workers share the tracker; byte increments are serialized inside
// it. The first error cancels the remaining work.
func (m *GameManager) downloadFiles(ctx context.Context, manifest *GameManifest, installPath string, tracker *ProgressTracker) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	threads := m.Config.DownloadThreads
	if threads <= 0 {
		threads = 1
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, threads)
	var firstErr error
	var errMu sync.Mutex

	for i := range manifest.FileList {
		entry := &manifest.FileList[i]

		select {
		case <-ctx.Done():
			wg.Wait()
			if firstErr != nil {
				return firstErr
			}
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(entry *FileEntry) {
			defer func() {
				<-sem
				wg.Done()
			}()

			tracker.FileStarted(entry.Filename)
			reconstructor := &FileReconstructor{
				Source:  m.Client,
				OnWrite: tracker.AddBytes,
			}
			destPath := filepath.Join(installPath, entry.Filename)
			if err := reconstructor.ReconstructFile(ctx, destPath, entry, manifest); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				errMu.Unlock()
			}
		}(entry)
	}

	wg.Wait()
	return firstErr
}

// CheckForUpdates reports the available version for an installed app, or
// "" when it is current.
func (m *GameManager) CheckForUpdates(ctx context.Context, appId string) (string, error) {
	cred, err := m.Auth.CurrentToken()
	if err != nil {
		return "", err
	}
	game, err := LoadInstalledGame(m.Config, appId)
	if err != nil {
		return "", err
	}
	return m.Client.CheckForUpdates(ctx, cred, appId, game.AppVersion)
}

// Update performs a differential update of appId. When oldManifest is nil
// the manifest persisted at install time is used; if that is missing too,
// every file of the new build is re-downloaded.
func (m *GameManager) Update(ctx context.Context, appId string, oldManifest *GameManifest) (string, error) {
	if err := m.acquire(appId); err != nil {
		return "", err
	}
	defer m.release(appId)

	cred, err := m.Auth.CurrentToken()
	if err != nil {
		return "", err
	}

	if oldManifest == nil {
		if persisted, err := LoadInstalledManifest(m.Config, appId); err == nil {
			oldManifest = persisted
		}
	}

	tracker := NewProgressTracker(0, 0)
	m.setProgress(tracker)
	defer m.setProgress(nil)

	updater := &Updater{
		Config:  m.Config,
		Client:  m.Client,
		OnWrite: tracker.AddBytes,
		OnPlan:  tracker.SetTotals,
		OnFileStart: func(filename string, _ int64) {
			tracker.FileStarted(filename)
		},
	}
	return updater.Update(ctx, cred, appId, oldManifest)
}

// Uninstall removes the install directory and the installed record.
func (m *GameManager) Uninstall(appId string) error {
	if err := m.acquire(appId); err != nil {
		return err
	}
	defer m.release(appId)

	game, err := LoadInstalledGame(m.Config, appId)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(game.InstallPath); err != nil {
		return WrapError(KindDisk, err, "failed to remove install directory %s", game.InstallPath)
	}
	if err := game.Delete(m.Config); err != nil {
		return err
	}

	PushLogInfo(m, "uninstalled", "app", appId)
	return nil
}

// ListInstalled reads every installed record.
func (m *GameManager) ListInstalled() ([]*InstalledGame, error) {
	return ListInstalledGames(m.Config)
}

// Launch starts the installed executable from its install directory.
// When auto_sync_saves is set, cloud saves sync first with the
// prefer-remote policy; a sync failure is logged, never fatal.
func (m *GameManager) Launch(ctx context.Context, appId string) error {
	game, err := LoadInstalledGame(m.Config, appId)
	if err != nil {
		return err
	}

	exePath := filepath.Join(game.InstallPath, game.Executable)
	if _, err := os.Stat(exePath); err != nil {
		return NewError(KindNotFound, "executable not found: %s", exePath)
	}

	if m.Config.AutoSyncSaves {
		if err := m.SyncSavesOnLaunch(ctx, appId); err != nil {
			PushLogWarning(m, "cloud save sync failed, launching anyway", "app", appId, "error", err)
		}
	}

	cmd := exec.Command(exePath)
	cmd.Dir = game.InstallPath
	if err := cmd.Start(); err != nil {
		return WrapError(KindDisk, err, "failed to launch %s", exePath)
	}

	PushLogInfo(m, "launched", "app", appId, "pid", cmd.Process.Pid)
	return nil
}

// SyncSavesOnLaunch is the automatic background flow: conflicts resolve
// in favor of the remote copy.
func (m *GameManager) SyncSavesOnLaunch(ctx context.Context, appId string) error {
	cred, err := m.Auth.CurrentToken()
	if err != nil {
		return err
	}
	sync := &CloudSaveSynchronizer{
		Config: m.Config,
		Client: m.Client,
		Policy: ConflictPreferRemote,
	}
	return sync.Download(ctx, cred, appId)
}

// DownloadSaves is the foreground flow; the caller supplies the conflict
// policy (or an Ask callback for interactive resolution).
func (m *GameManager) DownloadSaves(ctx context.Context, appId string, policy ConflictPolicy, ask ConflictFunc) error {
	cred, err := m.Auth.CurrentToken()
	if err != nil {
		return err
	}
	sync := &CloudSaveSynchronizer{
		Config: m.Config,
		Client: m.Client,
		Policy: policy,
		OnAsk:  ask,
	}
	return sync.Download(ctx, cred, appId)
}

// UploadSaves pushes every local save file for appId.
func (m *GameManager) UploadSaves(ctx context.Context, appId string) (int, error) {
	cred, err := m.Auth.CurrentToken()
	if err != nil {
		return 0, err
	}
	sync := &CloudSaveSynchronizer{
		Config: m.Config,
		Client: m.Client,
	}
	return sync.Upload(ctx, cred, appId)
}
