package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c360/ngsiadapter/parserregistry"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build %s)\n", appName, Version, BuildTime)
			return err
		},
	}
}

func newParsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parsers",
		Short: "List the built-in parsers and the parser search path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "Search path:")
			for _, entry := range cfg.ParserPath {
				_, _ = fmt.Fprintf(out, "  %s\n", entry)
			}
			_, _ = fmt.Fprintln(out, "Built-in parsers:")
			for _, name := range parserregistry.BuiltinNames() {
				_, _ = fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, w := range cfg.Warnings {
				_, _ = fmt.Fprintf(out, "warning: %s\n", w)
			}
			_, _ = fmt.Fprintf(out, "%s\n", cfg.String())
			_, _ = fmt.Fprintln(out, "Configuration is valid")
			return nil
		},
	}
}
