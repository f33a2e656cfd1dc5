package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scstools/compellent/host"
	"github.com/scstools/compellent/shared"
)

type cmdDelete struct {
	global *cmdGlobal

	flagDisks     []string
	flagAliases   []string
	flagAssumeYes bool
}

func (c *cmdDelete) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "delete <host>"
	cmd.Short = "Delete block devices from a host"
	cmd.Long = `Description:
  Delete block devices from a host

  Flushes the requested multipath devices and removes the requested disks
  through sysfs. A disk that is a member of a multipath device pulls in
  the whole device; mounted devices and LVM physical volumes are never
  touched and are reported as blocked instead.
`
	cmd.Args = cobra.ExactArgs(1)
	cmd.RunE = c.Run
	cmd.Flags().StringArrayVarP(&c.flagDisks, "disk", "s", nil, "Disk to delete, e.g. sdg (repeatable)"+"``")
	cmd.Flags().StringArrayVarP(&c.flagAliases, "multipath", "m", nil, "Multipath device to delete (repeatable)"+"``")
	cmd.Flags().BoolVarP(&c.flagAssumeYes, "assume-yes", "y", false, "Do not prompt for confirmation. Potentially dangerous!")

	return cmd
}

func (c *cmdDelete) Run(cmd *cobra.Command, args []string) error {
	if len(c.flagDisks) == 0 && len(c.flagAliases) == 0 {
		return fmt.Errorf("Nothing to delete, use --disk and/or --multipath")
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

	// Check the requested names against the live host state before
	// computing anything from them.
	err = c.validateNames(runner)
	if err != nil {
		return err
	}

	plan, err := host.PlanDeletion(runner, c.flagDisks, c.flagAliases)
	if err != nil {
		return err
	}

	for _, blocked := range plan.Blocked {
		fmt.Printf("Blocked: %s is in use and will not be touched\n", blocked)
	}

	if plan.Empty() {
		return fmt.Errorf("Nothing deletable: %s", plan.String())
	}

	fmt.Printf("Deletion plan: %s\n", plan.String())

	if !c.flagAssumeYes {
		confirmed, err := c.global.asker.AskBool(fmt.Sprintf("Delete these devices on %q? (yes/no) [default=no]: ", args[0]), "no")
		if err != nil {
			return err
		}

		if !confirmed {
			return fmt.Errorf("Deletion aborted by operator")
		}
	}

	err = host.ApplyDeletionPlan(runner, plan)
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d device(s) on %s\n", len(plan.Delete), args[0])

	return nil
}

// validateNames rejects requested disks and aliases that do not exist on the
// host, before any of them is acted upon.
func (c *cmdDelete) validateNames(runner host.Runner) error {
	output, err := runner.Run("ls", "/sys/block")
	if err != nil {
		return fmt.Errorf("Failed to list block devices: %w", err)
	}

	blocks := strings.Fields(output)
	for _, disk := range c.flagDisks {
		if !shared.ValueInSlice(disk, blocks) {
			return fmt.Errorf("Unknown disk %q", disk)
		}
	}

	aliases, err := host.MultipathAliases(runner)
	if err != nil {
		return err
	}

	for _, alias := range c.flagAliases {
		if !shared.ValueInSlice(alias, aliases) {
			return fmt.Errorf("Unknown multipath device %q", alias)
		}
	}

	return nil
}
