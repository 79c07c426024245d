package main

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
)

// Define command structs
type InstallCmd struct {
	AppID string `arg:"positional,required" help:"Application id to install"`
}

type UpdateCmd struct {
	AppID     string `arg:"positional,required" help:"Application id to update"`
	CheckOnly bool   `arg:"--check" help:"Only check whether an update is available"`
}

type UninstallCmd struct {
	AppID string `arg:"positional,required" help:"Application id to uninstall"`
}

type LaunchCmd struct {
	AppID string `arg:"positional,required" help:"Application id to launch"`
}

type ListCmd struct{}

type CloudSaveCmd struct {
	AppID     string `arg:"positional,required" help:"Application id"`
	Upload    bool   `arg:"--upload" help:"Upload local saves instead of downloading"`
	KeepLocal bool   `arg:"--keep-local" help:"Resolve conflicts by keeping local files"`
}

type ManifestInfoCmd struct {
	AppID      string `arg:"positional,required" help:"Application id"`
	OutputPath string `arg:"positional,required" help:"Path to output JSON file or - for stdout"`
}

// Root command struct
type Args struct {
	Install      *InstallCmd      `arg:"subcommand:install" help:"Install a build"`
	Update       *UpdateCmd       `arg:"subcommand:update" help:"Update an installed build"`
	Uninstall    *UninstallCmd    `arg:"subcommand:uninstall" help:"Remove an installed build"`
	Launch       *LaunchCmd       `arg:"subcommand:launch" help:"Launch an installed build"`
	List         *ListCmd         `arg:"subcommand:list" help:"List installed builds"`
	CloudSave    *CloudSaveCmd    `arg:"subcommand:cloudsave" help:"Sync cloud saves"`
	ManifestInfo *ManifestInfoCmd `arg:"subcommand:manifestinfo" help:"Fetch and output manifest information"`

	Config string `arg:"--config" help:"Path to config file"`
	Token  string `arg:"--token,env:GAUNCHER_TOKEN" help:"Bearer access token"`
}

func main() {
	var args Args
	arg.MustParse(&args)

	var code int
	switch {
	case args.Install != nil:
		code = runInstall(&args, args.Install.AppID)
	case args.Update != nil:
		code = runUpdate(&args, args.Update.AppID, args.Update.CheckOnly)
	case args.Uninstall != nil:
		code = runUninstall(&args, args.Uninstall.AppID)
	case args.Launch != nil:
		code = runLaunch(&args, args.Launch.AppID)
	case args.List != nil:
		code = runList(&args)
	case args.CloudSave != nil:
		code = runCloudSave(&args, args.CloudSave)
	case args.ManifestInfo != nil:
		code = runManifestInfo(&args, args.ManifestInfo.AppID, args.ManifestInfo.OutputPath)
	default:
		fmt.Println("No command specified")
		code = 1
	}
	os.Exit(code)
}
