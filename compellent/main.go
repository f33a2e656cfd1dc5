package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cli "github.com/scstools/compellent/shared/cmd"
	"github.com/scstools/compellent/shared/logger"
	"github.com/scstools/compellent/shared/version"
)

type cmdGlobal struct {
	asker cli.Asker

	flagConfig      string
	flagProfile     string
	flagAskPassword bool
	flagInsecure    bool
	flagLogFile     string
	flagVerbose     bool
	flagDebug       bool
	flagVersion     bool
	flagHelp        bool
}

// Run sets up logging before any sub-command executes.
func (c *cmdGlobal) Run(cmd *cobra.Command, args []string) error {
	return logger.InitLogger(c.flagLogFile, c.flagVerbose, c.flagDebug)
}

func main() {
	// compellent command (main)
	app := &cobra.Command{}
	app.Use = "compellent"
	app.Short = "Manage Dell Compellent storage and servers"
	app.Long = `Description:
  Manage Dell Compellent storage and servers

  Query, snapshot and clone Storage Center volumes through the Dell
  Storage Manager REST API, and reconcile the multipath devices backing
  them on Linux hosts reached over SSH.
`
	app.SilenceUsage = true
	app.CompletionOptions = cobra.CompletionOptions{DisableDefaultCmd: true}

	// Global flags
	globalCmd := cmdGlobal{asker: cli.NewAsker(bufio.NewReader(os.Stdin))}
	app.PersistentPreRunE = globalCmd.Run
	app.PersistentFlags().StringVarP(&globalCmd.flagConfig, "config", "c", "", "Path to the configuration file"+"``")
	app.PersistentFlags().StringVarP(&globalCmd.flagProfile, "profile", "C", "default", "Configuration profile to use"+"``")
	app.PersistentFlags().BoolVarP(&globalCmd.flagAskPassword, "password", "p", false, "Prompt for the Storage Manager password")
	app.PersistentFlags().BoolVarP(&globalCmd.flagInsecure, "insecure", "i", false, "Skip TLS certificate and SSH host key checking")
	app.PersistentFlags().StringVar(&globalCmd.flagLogFile, "logfile", "", "Path to a log file"+"``")
	app.PersistentFlags().BoolVarP(&globalCmd.flagVerbose, "verbose", "v", false, "Show all information messages")
	app.PersistentFlags().BoolVarP(&globalCmd.flagDebug, "debug", "d", false, "Show all debug messages")
	app.PersistentFlags().BoolVar(&globalCmd.flagVersion, "version", false, "Print version number")
	app.PersistentFlags().BoolVarP(&globalCmd.flagHelp, "help", "h", false, "Print help")

	// Version handling
	app.SetVersionTemplate("{{.Version}}\n")
	app.Version = version.Version

	// list sub-command
	listCmd := cmdList{global: &globalCmd}
	app.AddCommand(listCmd.Command())

	// snapshot sub-command
	snapshotCmd := cmdSnapshot{global: &globalCmd}
	app.AddCommand(snapshotCmd.Command())

	// refresh sub-command
	refreshCmd := cmdRefresh{global: &globalCmd}
	app.AddCommand(refreshCmd.Command())

	// alias sub-command
	aliasCmd := cmdAlias{global: &globalCmd}
	app.AddCommand(aliasCmd.Command())

	// delete sub-command
	deleteCmd := cmdDelete{global: &globalCmd}
	app.AddCommand(deleteCmd.Command())

	// rescan sub-command
	rescanCmd := cmdRescan{global: &globalCmd}
	app.AddCommand(rescanCmd.Command())

	// Run the main command and handle errors
	err := app.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
