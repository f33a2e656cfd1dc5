package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scstools/compellent/dsm"
	"github.com/scstools/compellent/refresh"
)

type cmdRefresh struct {
	global *cmdGlobal

	flagAssumeYes  bool
	flagExpiration string
	flagFilesystem string
	flagVolume     string
}

func (c *cmdRefresh) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "refresh <source> <source-mount> <destination> <dest-mount> <environment>"
	cmd.Short = "Refresh a cloned volume onto a destination host"
	cmd.Long = `Description:
  Refresh a cloned volume onto a destination host

  Creates a view volume of the volume mounted at <source-mount> on
  <source> and maps it to <destination> mounted at <dest-mount>. This is
  mostly intended for Oracle workloads refreshing a test database from
  production, and as a result it is very opinionated:

  1. Determine the volume mounted at <source-mount> on <source>.
  2. Snapshot it and expose a view volume to <destination>.
  3. Unmount whatever is mounted at <dest-mount> on <destination>.
  4. Delete the disks and multipath device backing the previous volume,
     unless they are still in use.
  5. Mount the view volume at <dest-mount> and persist it in /etc/fstab.

  This command is potentially dangerous, so use caution.
`
	cmd.Args = cobra.ExactArgs(5)
	cmd.RunE = c.Run
	cmd.Flags().BoolVarP(&c.flagAssumeYes, "assume-yes", "y", false, "Do not prompt for confirmation. Potentially dangerous!")
	cmd.Flags().StringVarP(&c.flagExpiration, "expiration", "e", dsm.DefaultExpiration, "Time until the backing snapshot expires"+"``")
	cmd.Flags().StringVar(&c.flagFilesystem, "fstype", refresh.DefaultFilesystem, "Filesystem type used to mount the clone"+"``")
	cmd.Flags().StringVar(&c.flagVolume, "volume", "", "Volume name pattern overriding the source mount lookup"+"``")

	return cmd
}

func (c *cmdRefresh) Run(cmd *cobra.Command, args []string) error {
	config, err := c.global.loadConfig()
	if err != nil {
		return err
	}

	params := refresh.Params{
		SourceHost:      args[0],
		SourceMount:     args[1],
		DestinationHost: args[2],
		Mountpoint:      args[3],
		Environment:     args[4],
		VolumePattern:   c.flagVolume,
		Filesystem:      c.flagFilesystem,
		Expiration:      c.flagExpiration,
		AssumeYes:       c.flagAssumeYes,
	}

	workflow := &refresh.Workflow{
		Names:      refresh.DNSResolver{},
		Domains:    config.Domains,
		RunnerFor:  c.global.runnerFactory(config),
		Production: config.production(),
		FolderRoot: config.FolderRoot,
		Confirm: func(question string) (bool, error) {
			return c.global.asker.AskBool(question, "no")
		},
	}

	// Reject bad requests before opening the array session.
	_, err = workflow.Validate(params)
	if err != nil {
		return err
	}

	session, err := c.global.session(config)
	if err != nil {
		return err
	}

	defer session.Close()

	workflow.API = session

	result, err := workflow.Run(context.Background(), params)
	if err != nil {
		return err
	}

	fmt.Printf("Refreshed %s on %s from volume %s\n", params.Mountpoint, params.DestinationHost, result.Clone.Volume.Name)

	return nil
}
