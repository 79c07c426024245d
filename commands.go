package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gauncher/gauncher/internal"
)

var sizeSuffixes = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

// setupEnvironment loads the config, installs the log renderer and wires
// the manager with a static credential from the CLI/environment.
func setupEnvironment(args *Args) (*internal.GameManager, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return nil, err
	}

	configPath := args.Config
	if configPath == "" {
		configPath = filepath.Join(dataDir, "config.yaml")
	}
	cfg, err := internal.LoadConfig(configPath, dataDir)
	if err != nil {
		return nil, err
	}

	minLevel := internal.ParseLogLevel(cfg.LogLevel)
	internal.LogHandler = func(sender interface{}, entry internal.LogStruct) {
		if !internal.LevelEnabled(minLevel, entry.LogLevel) {
			return
		}
		line := fmt.Sprintf("[%v] %s", entry.LogLevel, entry.Message)
		for i := 0; i+1 < len(entry.Fields); i += 2 {
			line += fmt.Sprintf(" %v=%v", entry.Fields[i], entry.Fields[i+1])
		}
		fmt.Fprintln(os.Stderr, line)
	}

	auth := &internal.StaticAuthenticator{}
	if args.Token != "" {
		auth.Credential = &internal.Credential{AccessToken: args.Token}
	}

	client := internal.NewStoreClient(cfg.CdnBaseUrl, cfg.CdnBaseUrl, internal.CdnPathResolver{})
	return internal.NewGameManager(cfg, auth, client), nil
}

func defaultDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "gauncher"), nil
}

// signalContext cancels the returned context on SIGINT/SIGTERM so an
// in-flight install or update can unwind cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

func runInstall(args *Args, appId string) int {
	manager, err := setupEnvironment(args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	stopProgress := make(chan struct{})
	go reportProgress(manager, stopProgress)

	err = manager.Install(ctx, appId)
	close(stopProgress)
	if err != nil {
		fmt.Printf("\nInstallation failed: %v\n", err)
		return 1
	}

	fmt.Println("\nInstallation complete!")
	return 0
}

func runUpdate(args *Args, appId string, checkOnly bool) int {
	manager, err := setupEnvironment(args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	if checkOnly {
		version, err := manager.CheckForUpdates(ctx, appId)
		if err != nil {
			fmt.Printf("Update check failed: %v\n", err)
			return 1
		}
		if version == "" {
			fmt.Println("Build is up to date")
		} else {
			fmt.Printf("Update available: %s\n", version)
		}
		return 0
	}

	stopProgress := make(chan struct{})
	go reportProgress(manager, stopProgress)

	version, err := manager.Update(ctx, appId, nil)
	close(stopProgress)
	if err != nil {
		fmt.Printf("\nUpdate failed: %v\n", err)
		return 1
	}
	if version == "" {
		fmt.Println("\nBuild is up to date")
	} else {
		fmt.Printf("\nUpdated to version %s\n", version)
	}
	return 0
}

func runUninstall(args *Args, appId string) int {
	manager, err := setupEnvironment(args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	if err := manager.Uninstall(appId); err != nil {
		fmt.Printf("Uninstall failed: %v\n", err)
		return 1
	}
	fmt.Printf("Uninstalled %s\n", appId)
	return 0
}

func runLaunch(args *Args, appId string) int {
	manager, err := setupEnvironment(args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := manager.Launch(ctx, appId); err != nil {
		fmt.Printf("Launch failed: %v\n", err)
		return 1
	}
	return 0
}

func runList(args *Args) int {
	manager, err := setupEnvironment(args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	games, err := manager.ListInstalled()
	if err != nil {
		fmt.Printf("Error listing installed builds: %v\n", err)
		return 1
	}
	if len(games) == 0 {
		fmt.Println("No builds installed")
		return 0
	}

	for _, game := range games {
		fmt.Printf("%s\t%s\t%s\t%s\n", game.AppName, game.AppTitle, game.AppVersion, game.InstallPath)
	}
	return 0
}

func runCloudSave(args *Args, cmd *CloudSaveCmd) int {
	manager, err := setupEnvironment(args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	if cmd.Upload {
		count, err := manager.UploadSaves(ctx, cmd.AppID)
		if err != nil {
			fmt.Printf("Upload failed: %v\n", err)
			return 1
		}
		fmt.Printf("Uploaded %d save file(s)\n", count)
		return 0
	}

	policy := internal.ConflictAsk
	if cmd.KeepLocal {
		policy = internal.ConflictKeepLocal
	}
	if err := manager.DownloadSaves(ctx, cmd.AppID, policy, promptConflict); err != nil {
		fmt.Printf("Download failed: %v\n", err)
		return 1
	}
	fmt.Println("Cloud saves downloaded")
	return 0
}

// promptConflict asks the user which side of a save conflict to keep.
func promptConflict(entry internal.CloudSaveEntry, localInfo os.FileInfo) internal.ConflictPolicy {
	fmt.Printf("Conflict: %s\n", entry.Filename)
	fmt.Printf("  Local modified:  %v\n", localInfo.ModTime())
	fmt.Printf("  Remote uploaded: %v\n", entry.UploadedAt)
	fmt.Println("  1. Keep local save")
	fmt.Println("  2. Download cloud save (local will be backed up)")
	fmt.Println("  3. Skip this save")
	fmt.Print("Enter your choice (1-3): ")

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return internal.ConflictSkip
	}
	switch input[:1] {
	case "1":
		return internal.ConflictKeepLocal
	case "2":
		return internal.ConflictPreferRemote
	default:
		return internal.ConflictSkip
	}
}

func runManifestInfo(args *Args, appId, outputPath string) int {
	manager, err := setupEnvironment(args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	cred, err := manager.Auth.CurrentToken()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	manifest, err := manager.Client.GetManifest(ctx, cred, appId)
	if err != nil {
		fmt.Printf("Error getting manifest: %v\n", err)
		return 1
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		fmt.Printf("Error encoding manifest: %v\n", err)
		return 1
	}

	if outputPath == "-" {
		fmt.Println(string(data))
		return 0
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		fmt.Printf("Error writing output: %v\n", err)
		return 1
	}
	return 0
}

// reportProgress redraws a one-line status until stop closes.
func reportProgress(manager *internal.GameManager, stop chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap, ok := manager.Progress()
			if !ok {
				continue
			}
			fmt.Printf("\r[%d/%d] %s | %s/%s (%s/s) ETA %s    ",
				snap.CurrentFile,
				snap.TotalFiles,
				snap.CurrentFilename,
				summarizeSizeSimple(float64(snap.CurrentBytes)),
				summarizeSizeSimple(float64(snap.TotalBytes)),
				summarizeSizeSimple(snap.SpeedBps),
				snap.ETA.Round(time.Second),
			)
		case <-stop:
			return
		}
	}
}

func summarizeSizeSimple(value float64, decimalPlaces ...int) string {
	if value == 0 {
		return "0 B"
	}

	dp := 2
	if len(decimalPlaces) > 0 {
		dp = decimalPlaces[0]
	}

	// Calculate magnitude
	mag := 0
	for value >= 1024 && mag < len(sizeSuffixes)-1 {
		value /= 1024
		mag++
	}

	// Format with specified decimal places
	return fmt.Sprintf("%."+strconv.Itoa(dp)+"f %s", value, sizeSuffixes[mag])
}
