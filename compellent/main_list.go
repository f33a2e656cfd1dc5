package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scstools/compellent/dsm"
	cli "github.com/scstools/compellent/shared/cmd"
)

type cmdList struct {
	global *cmdGlobal
}

func (c *cmdList) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "list <server|volume> <pattern>"
	cmd.Short = "Query Storage Center objects"
	cmd.Long = `Description:
  Query Storage Center objects

  Lists the servers or volumes attached to the Storage Center whose name
  matches the given pattern. A plain pattern matches as a substring; shell
  glob characters ('*', '?', character classes) match explicitly.
`
	cmd.Args = cobra.ExactArgs(2)
	cmd.RunE = c.Run

	return cmd
}

// widenPattern turns a plain word into a substring match while leaving
// explicit glob patterns alone.
func widenPattern(pattern string) string {
	if strings.ContainsAny(pattern, "*?[") {
		return pattern
	}

	return "*" + pattern + "*"
}

func (c *cmdList) Run(cmd *cobra.Command, args []string) error {
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
	pattern := widenPattern(args[1])

	switch args[0] {
	case "server":
		servers, err := resolver.FindServers(pattern)
		if err != nil {
			return err
		}

		rows := make([][]string, 0, len(servers))
		for _, server := range servers {
			rows = append(rows, []string{server.Name, server.InstanceID})
		}

		cli.RenderTable(os.Stdout, []string{"NAME", "ID"}, rows)
	case "volume":
		volumes, err := resolver.FindVolumes(pattern)
		if err != nil {
			return err
		}

		rows := make([][]string, 0, len(volumes))
		for _, volume := range volumes {
			rows = append(rows, []string{volume.Name, volume.InstanceID, volume.WWID()})
		}

		cli.RenderTable(os.Stdout, []string{"NAME", "ID", "WWID"}, rows)
	default:
		return fmt.Errorf("Unknown object type %q, use \"server\" or \"volume\"", args[0])
	}

	return nil
}
