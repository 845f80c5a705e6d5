package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// settings are the resolved global options of one invocation.
type settings struct {
	v *viper.Viper
}

func (s *settings) server() string { return strings.TrimRight(s.v.GetString("server"), "/") }
func (s *settings) output() string { return s.v.GetString("output") }
func (s *settings) tenant() string { return s.v.GetString("tenant") }
func (s *settings) user() string   { return s.v.GetString("user") }
func (s *settings) token() string  { return s.v.GetString("token") }

func (s *settings) client() *formsClient {
	return newFormsClient(s.server(), s.tenant(), s.user(), s.token())
}

// newRootCmd builds the command tree. Options resolve in order: flag,
// FORMSCTL_* environment variable, config file, default.
func newRootCmd() *cobra.Command {
	cfg := &settings{v: viper.New()}
	var cfgFile string

	root := &cobra.Command{
		Use:   "formsctl",
		Short: "CLI for the forms server",
		Long: `formsctl manages form definitions, inspects responses and analytics, and
runs exports against a forms server.

Options can also be set as FORMSCTL_<OPTION> environment variables or in
~/.formsctl.yaml.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.load(cmd, cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default $HOME/.formsctl.yaml)")
	flags.String("server", "http://localhost:8080", "Forms server URL")
	flags.StringP("output", "o", "table", "Output format: table, json, yaml")
	flags.StringP("tenant", "t", "", "Tenant to act for (sent as X-Tenant-ID)")
	flags.String("user", "", "User to act as when the server uses header identity")
	flags.String("token", "", "Bearer token when the server uses JWT identity")

	root.AddCommand(
		newHealthCmd(cfg),
		newSchemaCmd(cfg),
		newFormsCmd(cfg),
		newResponsesCmd(cfg),
		newStatsCmd(cfg),
		newTrendCmd(cfg),
		newExportCmd(cfg),
		newExportsCmd(cfg),
	)
	return root
}

func (s *settings) load(cmd *cobra.Command, cfgFile string) error {
	v := s.v
	v.SetEnvPrefix("FORMSCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.SetConfigFile(filepath.Join(home, ".formsctl.yaml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && (errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}
