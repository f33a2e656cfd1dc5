package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scstools/compellent/host"
)

type cmdRescan struct {
	global *cmdGlobal
}

func (c *cmdRescan) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "rescan <host>"
	cmd.Short = "Rescan the SCSI bus on a host"
	cmd.Long = `Description:
  Rescan the SCSI bus on a host

  Triggers a rescan on every SCSI host adapter so newly mapped volumes
  become visible without a reboot.
`
	cmd.Args = cobra.ExactArgs(1)
	cmd.RunE = c.Run

	return cmd
}

func (c *cmdRescan) Run(cmd *cobra.Command, args []string) error {
	config, err := c.global.loadConfig()
	if err != nil {
		return err
	}

	runner, closer, err := c.global.hostRunner(config, args[0])
	if err != nil {
		return err
	}

	defer closer()

	err = host.RescanSCSIHosts(runner)
	if err != nil {
		return err
	}

	fmt.Printf("Rescanned SCSI bus on %s\n", args[0])

	return nil
}
