package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/skosovsky/kernelctl"
)

type kernelRow struct {
	Kernel string `json:"kernel" yaml:"kernel"`
	Local  bool   `json:"local" yaml:"local"`
	Online bool   `json:"online" yaml:"online"`
}

type environmentRow struct {
	Kernel       string   `json:"kernel" yaml:"kernel"`
	Environments []string `json:"environments" yaml:"environments"`
}

func newFetchCommand(global *globalOptions) *cobra.Command {
	var (
		download     bool
		remove       bool
		environments bool
		format       string
		scopeName    string
	)
	cmd := &cobra.Command{
		Use:   "fetch [KERNEL]",
		Short: "List, download or remove kernels",
		Long:  "Without action flags fetch lists the kernels matching KERNEL (default all) locally and on the update site. KERNEL is an identifier, a regular expression, latest, or all.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if countTrue(download, remove, environments) > 1 {
				return errors.New("--download, --clear and --environments are mutually exclusive")
			}
			raw := "all"
			if len(args) == 1 {
				raw = args[0]
			}
			req, err := kernelctl.ParseRequest(raw)
			if err != nil {
				return err
			}
			scope, err := kernelctl.ParseScope(scopeName)
			if err != nil {
				return err
			}
			s, err := global.open()
			if err != nil {
				return err
			}
			defer s.close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			switch {
			case download:
				ids, err := s.conductor.FetchKernels(ctx, req)
				for _, id := range ids {
					fmt.Fprintf(out, "Fetched %s\n", id)
				}
				return err
			case remove:
				ids, err := s.conductor.DeleteKernels(ctx, req)
				for _, id := range ids {
					fmt.Fprintf(out, "Removed %s\n", id)
				}
				return err
			case environments:
				envs, err := s.conductor.ListEnvironments(ctx, req)
				if err != nil {
					return err
				}
				rows := make([]environmentRow, 0, len(envs))
				for _, id := range slices.Sorted(maps.Keys(envs)) {
					rows = append(rows, environmentRow{Kernel: id, Environments: envs[id]})
				}
				return writeRows(out, format, rows, func(tw io.Writer) {
					fmt.Fprintln(tw, "KERNEL\tENVIRONMENTS")
					for _, r := range rows {
						fmt.Fprintf(tw, "%s\t%s\n", r.Kernel, strings.Join(r.Environments, ", "))
					}
				})
			}

			avail, err := listKernels(cmd, s, scope, req)
			if err != nil {
				return err
			}
			rows := make([]kernelRow, 0, len(avail))
			for _, id := range avail.Kernels() {
				a := avail[id]
				rows = append(rows, kernelRow{Kernel: id, Local: a.Has(kernelctl.AvailableLocal), Online: a.Has(kernelctl.AvailableOnline)})
			}
			return writeRows(out, format, rows, func(tw io.Writer) {
				fmt.Fprintln(tw, "KERNEL\tLOCAL\tONLINE")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Kernel, mark(r.Local), mark(r.Online))
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&download, "download", "d", false, "Download matching kernels from the update site, replacing local copies")
	cmd.Flags().BoolVarP(&remove, "clear", "c", false, "Remove matching kernels from the local repository")
	cmd.Flags().BoolVarP(&environments, "environments", "e", false, "List the environments of matching local kernels")
	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format: table, json, yaml")
	cmd.Flags().StringVar(&scopeName, "scope", "all", "Where to look for kernels: local, remote, all")
	return cmd
}

func listKernels(cmd *cobra.Command, s *session, scope kernelctl.Scope, req kernelctl.Request) (kernelctl.Availabilities, error) {
	if scope == kernelctl.ScopeAll {
		return s.conductor.AllKernels(cmd.Context(), req)
	}
	ids, err := s.conductor.ResolveKernels(cmd.Context(), scope, req)
	if err != nil {
		return nil, err
	}
	flag := kernelctl.AvailableLocal
	if scope == kernelctl.ScopeRemote {
		flag = kernelctl.AvailableOnline
	}
	avail := make(kernelctl.Availabilities, len(ids))
	avail.Add(flag, ids...)
	return avail, nil
}

func writeRows(w io.Writer, format string, rows any, table func(io.Writer)) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "table":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported --output %q (expected table, json, or yaml)", format)
	}
}

func mark(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func countTrue(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}
