package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skosovsky/kernelctl"
	"github.com/skosovsky/kernelctl/overlay"
)

func newCreateCommand(global *globalOptions) *cobra.Command {
	var (
		kernel string
		envs   []string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "create DIR",
		Short: "Create a project from a local kernel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := kernelctl.ParseRequest(kernel)
			if err != nil {
				return err
			}
			s, err := global.open()
			if err != nil {
				return err
			}
			defer s.close()
			report, err := s.conductor.CreateProject(cmd.Context(), req, args[0], envs, force)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), "Created", args[0], report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&kernel, "kernel", "k", "latest", "Kernel to create the project from (identifier, pattern, or latest)")
	cmd.Flags().StringSliceVarP(&envs, "environments", "e", []string{overlay.None}, "Environments to apply")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace DIR if it exists")
	return cmd
}

func newUpgradeCommand(global *globalOptions) *cobra.Command {
	var (
		kernel string
		envs   []string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "upgrade DIR",
		Short: "Upgrade a project's kernel files from a local kernel",
		Long:  "Upgrade refreshes the kernel-owned files of an existing project. Without --environments the environments already applied to the project are detected and refreshed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := kernelctl.ParseRequest(kernel)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("environments") {
				envs = []string{}
			}
			s, err := global.open()
			if err != nil {
				return err
			}
			defer s.close()
			report, err := s.conductor.UpgradeProject(cmd.Context(), req, args[0], envs, force)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), "Upgraded", args[0], report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&kernel, "kernel", "k", "latest", "Kernel to upgrade the project to (identifier, pattern, or latest)")
	cmd.Flags().StringSliceVarP(&envs, "environments", "e", nil, "Environments to refresh (default: those already applied)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Upgrade even if DIR does not look like a project")
	return cmd
}

func printReport(w io.Writer, verb, dir string, r *overlay.Report) {
	fmt.Fprintf(w, "%s %s: %d file(s) written, %d unchanged\n", verb, dir, len(r.Written), len(r.Unchanged))
	if len(r.Environments) > 0 {
		fmt.Fprintf(w, "Environments: %s\n", strings.Join(r.Environments, ", "))
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "Not declared by the kernel: %s\n", strings.Join(r.Skipped, ", "))
	}
}
