package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func testManager(t *testing.T, cdn *fakeCDN) *GameManager {
	t.Helper()
	cfg := testConfig(t)
	auth := &StaticAuthenticator{Credential: testCred()}
	return NewGameManager(cfg, auth, cdn.client(nil))
}

func TestInstallReconstructsEveryFile(t *testing.T) {
	files := map[string][]chunkSpec{
		"game.sh": {{id: "a0000001", data: []byte("#!/bin/sh\n")}},
		"data/world.dat": {
			{id: "b0000001", data: []byte("part one ")},
			{id: "b0000002", data: []byte("part two")},
		},
	}
	m := buildManifest("app1", "1.0", files)
	m.LaunchExe = "game.sh"
	cdn := newFakeCDN(t, "app1", m, manifestChunks(m, files))
	mgr := testManager(t, cdn)

	if err := mgr.Install(context.Background(), "app1"); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	installPath := mgr.Config.GameInstallPath("app1")
	if got := readFileOrFail(t, filepath.Join(installPath, "game.sh")); string(got) != "#!/bin/sh\n" {
		t.Errorf("game.sh = %q", got)
	}
	if got := readFileOrFail(t, filepath.Join(installPath, "data", "world.dat")); string(got) != "part one part two" {
		t.Errorf("world.dat = %q, want part one part two", got)
	}

	game, err := LoadInstalledGame(mgr.Config, "app1")
	if err != nil {
		t.Fatalf("installed record missing after install: %v", err)
	}
	if game.AppVersion != "1.0" || game.Executable != "game.sh" {
		t.Errorf("record = %+v, want version 1.0 and game.sh", game)
	}
}

func TestInstallWithGzippedManifest(t *testing.T) {
	files := map[string][]chunkSpec{
		"a.pak": {{id: "a0000001", data: []byte("payload")}},
	}
	m := buildManifest("app1", "1.0", files)
	cdn := newFakeCDN(t, "app1", m, manifestChunks(m, files))
	cdn.gzipManifest = true
	mgr := testManager(t, cdn)

	if err := mgr.Install(context.Background(), "app1"); err != nil {
		t.Fatalf("Install() with gzipped manifest error = %v", err)
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	files := map[string][]chunkSpec{
		"a.pak": {{id: "a0000001", data: []byte("payload")}},
	}
	m := buildManifest("app1", "1.0", files)
	cdn := newFakeCDN(t, "app1", m, manifestChunks(m, files))
	mgr := testManager(t, cdn)

	for i := 0; i < 2; i++ {
		if err := mgr.Install(context.Background(), "app1"); err != nil {
			t.Fatalf("Install() run %d error = %v", i+1, err)
		}
	}

	got := readFileOrFail(t, filepath.Join(mgr.Config.GameInstallPath("app1"), "a.pak"))
	if !bytes.Equal(got, []byte("payload")) {
		t.Errorf("a.pak after reinstall = %q, want payload", got)
	}
}

func TestInstallCorruptChunkLeavesNoRecord(t *testing.T) {
	files := map[string][]chunkSpec{
		"a.pak": {{id: "a0000001", data: []byte("payload")}},
	}
	m := buildManifest("app1", "1.0", files)
	cdn := newFakeCDN(t, "app1", m, manifestChunks(m, files))
	cdn.corruptChunk = "a0000001"
	mgr := testManager(t, cdn)

	err := mgr.Install(context.Background(), "app1")
	if !IsKind(err, KindIntegrity) {
		t.Fatalf("Install() with corrupt chunk = %v, want integrity error", err)
	}
	if _, err := LoadInstalledGame(mgr.Config, "app1"); !IsKind(err, KindNotFound) {
		t.Errorf("installed record exists after a failed install: %v", err)
	}
}

func TestInstallRequiresCredential(t *testing.T) {
	m := buildManifest("app1", "1.0", nil)
	cdn := newFakeCDN(t, "app1", m, nil)
	mgr := testManager(t, cdn)
	mgr.Auth = &StaticAuthenticator{}

	err := mgr.Install(context.Background(), "app1")
	if !IsKind(err, KindAuth) {
		t.Errorf("Install() without credential = %v, want auth error", err)
	}
	if cdn.manifestHits != 0 {
		t.Errorf("manifest fetched %d times without a credential, want 0", cdn.manifestHits)
	}
}

func TestSingleFlightPerApp(t *testing.T) {
	mgr := testManager(t, newFakeCDN(t, "app1", buildManifest("app1", "1.0", nil), nil))

	// Occupy the slot directly; Install would release it too fast to race.
	if err := mgr.acquire("app1"); err != nil {
		t.Fatalf("acquire() error = %v", err)
	}
	defer mgr.release("app1")

	err := mgr.Install(context.Background(), "app1")
	if !IsKind(err, KindConfig) {
		t.Errorf("Install() on a busy app = %v, want busy error", err)
	}

	// A different app id is unaffected.
	if err := mgr.acquire("app2"); err != nil {
		t.Errorf("acquire() for another app = %v, want nil", err)
	}
	mgr.release("app2")
}

func TestSingleFlightReleasedAfterFailure(t *testing.T) {
	m := buildManifest("app1", "1.0", map[string][]chunkSpec{
		"a.pak": {{id: "a0000001", data: []byte("payload")}},
	})
	cdn := newFakeCDN(t, "app1", m, nil) // no chunks: install fails
	mgr := testManager(t, cdn)

	if err := mgr.Install(context.Background(), "app1"); err == nil {
		t.Fatal("Install() against an empty CDN succeeded")
	}
	// The slot must be free again.
	if err := mgr.acquire("app1"); err != nil {
		t.Errorf("app still marked busy after a failed install: %v", err)
	}
	mgr.release("app1")
}

func TestProgressVisibleDuringInstall(t *testing.T) {
	files := map[string][]chunkSpec{
		"a.pak": {{id: "a0000001", data: []byte("payload")}},
	}
	m := buildManifest("app1", "1.0", files)
	chunks := manifestChunks(m, files)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".manifest") {
			data, _ := json.Marshal(m)
			w.Write(data)
			return
		}
		// Park the chunk response so the install stays in flight.
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		id := strings.TrimSuffix(filepath.Base(r.URL.Path), ".chunk")
		w.Write(chunks[id])
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := testConfig(t)
	cfg.DownloadThreads = 1
	client := NewStoreClient(server.URL, server.URL, nil)
	client.retry = fastRetry()
	mgr := NewGameManager(cfg, &StaticAuthenticator{Credential: testCred()}, client)

	var wg sync.WaitGroup
	wg.Add(1)
	var installErr error
	go func() {
		defer wg.Done()
		installErr = mgr.Install(context.Background(), "app1")
	}()

	<-entered
	snap, running := mgr.Progress()
	if !running {
		t.Error("Progress() reports nothing while an install is in flight")
	}
	if snap.TotalBytes != int64(len("payload")) {
		t.Errorf("Progress() TotalBytes = %d, want %d", snap.TotalBytes, len("payload"))
	}
	close(release)
	wg.Wait()

	if installErr != nil {
		t.Fatalf("Install() error = %v", installErr)
	}
	if _, running := mgr.Progress(); running {
		t.Error("Progress() still reports an operation after completion")
	}
}

func TestUninstallRemovesTreeAndRecord(t *testing.T) {
	files := map[string][]chunkSpec{
		"a.pak": {{id: "a0000001", data: []byte("payload")}},
	}
	m := buildManifest("app1", "1.0", files)
	cdn := newFakeCDN(t, "app1", m, manifestChunks(m, files))
	mgr := testManager(t, cdn)

	if err := mgr.Install(context.Background(), "app1"); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Uninstall("app1"); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}

	if _, err := os.Stat(mgr.Config.GameInstallPath("app1")); !os.IsNotExist(err) {
		t.Errorf("install directory survives uninstall (stat err = %v)", err)
	}
	if _, err := LoadInstalledGame(mgr.Config, "app1"); !IsKind(err, KindNotFound) {
		t.Errorf("record survives uninstall: %v", err)
	}
}

func TestUninstallNotInstalled(t *testing.T) {
	mgr := testManager(t, newFakeCDN(t, "app1", buildManifest("app1", "1.0", nil), nil))
	if err := mgr.Uninstall("missing"); !IsKind(err, KindNotFound) {
		t.Errorf("Uninstall() of an unknown app = %v, want not-found error", err)
	}
}

func TestCheckForUpdatesThroughManager(t *testing.T) {
	m := buildManifest("app1", "2.0", nil)
	cdn := newFakeCDN(t, "app1", m, nil)
	mgr := testManager(t, cdn)

	game := &InstalledGame{AppName: "app1", AppVersion: "1.0", InstallPath: mgr.Config.GameInstallPath("app1")}
	if err := game.Save(mgr.Config); err != nil {
		t.Fatal(err)
	}

	version, err := mgr.CheckForUpdates(context.Background(), "app1")
	if err != nil {
		t.Fatalf("CheckForUpdates() error = %v", err)
	}
	if version != "2.0" {
		t.Errorf("CheckForUpdates() = %q, want 2.0", version)
	}
}

func TestManagerUpdateAppliesDiff(t *testing.T) {
	oldFiles := map[string][]chunkSpec{
		"a.pak": {{id: "a0000001", data: []byte("alpha")}},
	}
	newFiles := map[string][]chunkSpec{
		"a.pak": {{id: "a0000002", data: []byte("alpha v2")}},
	}
	oldM := buildManifest("app1", "1.0", oldFiles)
	newM := buildManifest("app1", "2.0", newFiles)
	cdn := newFakeCDN(t, "app1", newM, manifestChunks(newM, newFiles))
	mgr := testManager(t, cdn)

	seedInstall(t, mgr.Config, "app1", "1.0", map[string][]byte{"a.pak": []byte("alpha")})

	version, err := mgr.Update(context.Background(), "app1", oldM)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if version != "2.0" {
		t.Errorf("Update() = %q, want 2.0", version)
	}
	got := readFileOrFail(t, filepath.Join(mgr.Config.GameInstallPath("app1"), "a.pak"))
	if string(got) != "alpha v2" {
		t.Errorf("a.pak after update = %q, want alpha v2", got)
	}
}

func TestManagerUpdateDiffsAgainstPersistedManifest(t *testing.T) {
	oldFiles := map[string][]chunkSpec{
		"a.pak": {{id: "a0000001", data: []byte("alpha")}},
		"b.pak": {{id: "b0000001", data: []byte("beta")}},
	}
	oldM := buildManifest("app1", "1.0", oldFiles)
	cdn := newFakeCDN(t, "app1", oldM, manifestChunks(oldM, oldFiles))
	mgr := testManager(t, cdn)

	if err := mgr.Install(context.Background(), "app1"); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	newFiles := map[string][]chunkSpec{
		"a.pak": {{id: "a0000001", data: []byte("alpha")}},
		"b.pak": {{id: "b0000002", data: []byte("beta prime")}},
	}
	newM := buildManifest("app1", "2.0", newFiles)
	cdn.manifest = newM
	cdn.chunks = manifestChunks(newM, newFiles)
	// The unchanged file's chunk is gone from the CDN; fetching it would
	// fail the update, which proves the persisted manifest drove the diff.
	delete(cdn.chunks, "a0000001")
	mgr.Client.Cache().Clear()

	version, err := mgr.Update(context.Background(), "app1", nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if version != "2.0" {
		t.Errorf("Update() = %q, want 2.0", version)
	}

	installPath := mgr.Config.GameInstallPath("app1")
	if got := readFileOrFail(t, filepath.Join(installPath, "a.pak")); string(got) != "alpha" {
		t.Errorf("a.pak = %q, want untouched alpha", got)
	}
	if got := readFileOrFail(t, filepath.Join(installPath, "b.pak")); string(got) != "beta prime" {
		t.Errorf("b.pak = %q, want beta prime", got)
	}

	// The persisted manifest now describes the new build.
	persisted, err := LoadInstalledManifest(mgr.Config, "app1")
	if err != nil {
		t.Fatalf("LoadInstalledManifest() after update: %v", err)
	}
	if persisted.AppVersion != "2.0" {
		t.Errorf("persisted manifest version = %s, want 2.0", persisted.AppVersion)
	}
}

func TestLaunchFailsWithoutExecutable(t *testing.T) {
	mgr := testManager(t, newFakeCDN(t, "app1", buildManifest("app1", "1.0", nil), nil))
	game := &InstalledGame{
		AppName:     "app1",
		AppVersion:  "1.0",
		InstallPath: mgr.Config.GameInstallPath("app1"),
		Executable:  "missing.sh",
	}
	if err := game.Save(mgr.Config); err != nil {
		t.Fatal(err)
	}

	err := mgr.Launch(context.Background(), "app1")
	if !IsKind(err, KindNotFound) {
		t.Errorf("Launch() with missing executable = %v, want not-found error", err)
	}
}
