// main.go bootstraps kernelctl: it builds the root Cobra command and executes it with a signal-aware context.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/skosovsky/kernelctl"
	"github.com/skosovsky/kernelctl/conductor"
	"github.com/skosovsky/kernelctl/internal/logging"
	"github.com/skosovsky/kernelctl/settings"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := newRootCommand().ExecuteContext(ctx)
	handleError(os.Stderr, err)
	if err != nil {
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	logLevel     string
	settingsPath string
	site         string
	repository   string
}

// session is what a subcommand works with: a configured Conductor and its logger.
type session struct {
	log       *zap.Logger
	conductor *conductor.Conductor
}

func (s *session) close() {
	_ = s.log.Sync()
}

func (o *globalOptions) open() (*session, error) {
	log, err := logging.New(o.logLevel)
	if err != nil {
		return nil, err
	}
	st, err := settings.Load(o.settingsPath, settings.WithLogger(log))
	if err != nil {
		return nil, err
	}
	c := conductor.New(st, conductor.WithLogger(log))
	if o.site != "" {
		if err := c.SetUpdateSite(o.site, false); err != nil {
			return nil, err
		}
	}
	if o.repository != "" {
		if err := c.SetLocalRepositoryPath(o.repository, false); err != nil {
			return nil, err
		}
	}
	return &session{log: log, conductor: c}, nil
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{logLevel: "info"}
	cmd := &cobra.Command{
		Use:           "kernelctl",
		Short:         "Create and upgrade projects from versioned kernel templates",
		Long:          "kernelctl resolves kernel templates from an update site, caches them in a local repository, and creates or upgrades project directories from them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.settingsPath, "settings", settings.DefaultPath, "Path to the settings file")
	cmd.PersistentFlags().StringVar(&opts.site, "site", "", "Update site to use for this invocation (not saved)")
	cmd.PersistentFlags().StringVar(&opts.repository, "repository", "", "Local kernel repository to use for this invocation (not saved)")

	cmd.AddCommand(
		newCreateCommand(opts),
		newUpgradeCommand(opts),
		newFetchCommand(opts),
		newConfigCommand(opts),
	)
	cmd.Example = `  # Create a project from the latest local kernel with the uart environment
  kernelctl create ./robot --kernel latest --environments uart

  # Download every 2.x kernel from the update site
  kernelctl fetch '2.*' --download

  # Point at a Git mirror of the kernels
  kernelctl config update-site 'git clone https://github.com/purduesigbots/kernels.git'`
	bindViper(cmd)
	return cmd
}

// bindViper lets KERNELCTL_* environment variables supply persistent flags the user did not set.
// It runs before every subcommand, after flag parsing.
func bindViper(cmd *cobra.Command) {
	cmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		return applyEnv(cmd.PersistentFlags())
	}
}

func applyEnv(flags *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("KERNELCTL")
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return err
	}
	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if val := fmt.Sprintf("%v", v.Get(f.Name)); val != "" {
			if err := f.Value.Set(val); err != nil {
				errs = append(errs, fmt.Errorf("KERNELCTL_%s: %w", strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err))
			}
		}
	})
	return errors.Join(errs...)
}

func handleError(w io.Writer, err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	switch {
	case errors.Is(err, kernelctl.ErrAmbiguousKernel):
		message = fmt.Sprintf("%s\nHint: pass a more specific --kernel pattern.", err)
	case errors.Is(err, kernelctl.ErrNotUpgradeable):
		message = fmt.Sprintf("%s\nHint: pass --force to upgrade anyway, or use 'kernelctl create --force'.", err)
	case errors.Is(err, kernelctl.ErrProjectExists):
		message = fmt.Sprintf("%s\nHint: pass --force to replace it, or use 'kernelctl upgrade'.", err)
	case errors.Is(err, kernelctl.ErrKernelNotFound):
		message = fmt.Sprintf("%s\nHint: run 'kernelctl fetch' to see the kernels available, and 'kernelctl fetch KERNEL --download' to cache one.", err)
	case errors.Is(err, kernelctl.ErrTransport), errors.Is(err, kernelctl.ErrNoProvider):
		message = fmt.Sprintf("%s\nHint: check the update site with 'kernelctl config update-site'.", err)
	}
	fmt.Fprintf(w, "Error: %s\n", message)
}
