package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scstools/compellent/host"
)

type cmdAlias struct {
	global *cmdGlobal

	flagAssumeYes  bool
	flagConfigPath string
}

func (c *cmdAlias) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "alias <host> <wwid>:<alias>..."
	cmd.Short = "Change multipath aliases on a host"
	cmd.Long = `Description:
  Change multipath aliases on a host

  Rebinds the given WWIDs to the given aliases in the host's multipath
  configuration and reloads the multipath daemon. A WWID whose current
  alias backs a mounted device is skipped and left unchanged.
`
	cmd.Args = cobra.MinimumNArgs(2)
	cmd.RunE = c.Run
	cmd.Flags().BoolVarP(&c.flagAssumeYes, "assume-yes", "y", false, "Do not prompt for confirmation")
	cmd.Flags().StringVar(&c.flagConfigPath, "multipath-conf", host.DefaultMultipathConfig, "Path of the multipath configuration on the host"+"``")

	return cmd
}

func (c *cmdAlias) Run(cmd *cobra.Command, args []string) error {
	changes := make([]host.AliasChange, 0, len(args)-1)
	for _, pair := range args[1:] {
		change, err := host.ParseAliasChange(pair)
		if err != nil {
			return err
		}

		changes = append(changes, *change)
	}

	config, err := c.global.loadConfig()
	if err != nil {
		return err
	}

	runner, closer, err := c.global.hostRunner(config, args[0])
	if err != nil {
		return err
	}

	defer closer()

	if !c.flagAssumeYes {
		confirmed, err := c.global.asker.AskBool(fmt.Sprintf("Rewrite %q on %q? (yes/no) [default=no]: ", c.flagConfigPath, args[0]), "no")
		if err != nil {
			return err
		}

		if !confirmed {
			return fmt.Errorf("Alias change aborted by operator")
		}
	}

	applied, skipped, err := host.SyncAliasConfig(runner, c.flagConfigPath, changes)
	for _, skip := range skipped {
		fmt.Printf("Skipped: %s\n", skip.Error())
	}

	if err != nil {
		return err
	}

	// The rewrite already ran above, reflecting the unchanged aliases.
	if applied == 0 {
		return fmt.Errorf("No alias change could be applied; configuration rewritten from the running table")
	}

	fmt.Printf("Applied %d alias change(s) on %s\n", applied, args[0])

	return nil
}
