package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scstools/compellent/dsm"
)

type cmdSnapshot struct {
	global *cmdGlobal

	flagExpiration string
}

func (c *cmdSnapshot) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "snapshot <volume>"
	cmd.Short = "Snapshot a Storage Center volume"
	cmd.Long = `Description:
  Snapshot a Storage Center volume

  Creates a replay of the named volume. The expiration is a human time
  expression such as 12h, 7d, 2w, 1m or 1y; a plain integer is taken as
  minutes and 0 means the replay never expires.
`
	cmd.Args = cobra.ExactArgs(1)
	cmd.RunE = c.Run
	cmd.Flags().StringVarP(&c.flagExpiration, "expiration", "e", dsm.DefaultExpiration, "Time until the snapshot expires"+"``")

	return cmd
}

func (c *cmdSnapshot) Run(cmd *cobra.Command, args []string) error {
	// Reject a malformed expiration before touching the network.
	expireMinutes, err := dsm.ParseExpiration(c.flagExpiration)
	if err != nil {
		return err
	}

	config, err := c.global.loadConfig()
	if err != nil {
		return err
	}

	session, err := c.global.session(config)
	if err != nil {
		return err
	}

	defer session.Close()

	resolver := dsm.NewResolver(session)

	volume, err := resolver.ResolveVolume(args[0])
	if err != nil {
		return err
	}

	snapshot, err := session.CreateSnapshot(volume.InstanceID, fmt.Sprintf("Manual snapshot of %s", volume.Name), expireMinutes)
	if err != nil {
		return err
	}

	fmt.Printf("Created snapshot %s of volume %s\n", snapshot.InstanceID, volume.Name)

	return nil
}
