package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

const (
	varUpdateSite = "update-site"
	varRepository = "local-repository"
)

func newConfigCommand(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "config VARIABLE [VALUE]",
		Short:     "Show or change the update site and local repository",
		Long:      "With one argument config prints the variable; with two it saves the new value. Variables: update-site, local-repository.",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{varUpdateSite, varRepository},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := global.open()
			if err != nil {
				return err
			}
			defer s.close()
			c := s.conductor
			name := strings.ToLower(args[0])
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				switch name {
				case varUpdateSite:
					fmt.Fprintln(out, c.UpdateSite())
				case varRepository:
					fmt.Fprintln(out, c.LocalRepositoryPath())
				default:
					return unknownVariable(args[0])
				}
				return nil
			}

			switch name {
			case varUpdateSite:
				if err := c.SetUpdateSite(args[1], true); err != nil {
					return err
				}
				fmt.Fprintf(out, "Update site set to %s\n", c.UpdateSite())
			case varRepository:
				if err := c.SetLocalRepositoryPath(args[1], true); err != nil {
					return err
				}
				fmt.Fprintf(out, "Local repository set to %s\n", c.LocalRepositoryPath())
			default:
				return unknownVariable(args[0])
			}
			return nil
		},
	}
	return cmd
}

func unknownVariable(name string) error {
	return fmt.Errorf("unknown variable %q (expected %s or %s)", name, varUpdateSite, varRepository)
}
