package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"scriptreel/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigSetKeyCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		targetPath string
		overwrite  bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			var err error
			if target == "" {
				target, err = config.DefaultConfigPath()
			} else {
				target, err = config.ExpandPath(target)
			}
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}
			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("check config path: %w", err)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set vendor.base_url, then store the vendor key with `scriptreel config set-key` (or export SCRIPTREEL_VENDOR_API_KEY).")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			masked := *cfg
			masked.Vendor.APIKey = maskSecret(cfg.Vendor.APIKey)
			masked.Paths.APIToken = maskSecret(cfg.Paths.APIToken)
			if cfg.Database.Driver == config.DriverPostgres {
				masked.Database.DSN = maskSecret(cfg.Database.DSN)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, masked)
			}
			data, err := toml.Marshal(masked)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", fallback(ctx.configPath, "defaults"))
			_, err = out.Write(data)
			return err
		},
	}
}

func newConfigSetKeyCommand(ctx *commandContext) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:         "set-key [vendor-api-key]",
		Short:       "Store the vendor API key in the OS keyring",
		Long:        "Stores the vendor API key in the OS keyring. Without an argument the key is read from stdin.",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if remove {
				if err := config.StoreVendorKey(ctx.secrets, ""); err != nil {
					return err
				}
				fmt.Fprintln(out, "Vendor key removed from keyring")
				return nil
			}
			key := ""
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no key provided on stdin")
				}
				key = line
			}
			if strings.TrimSpace(key) == "" {
				return errors.New("vendor key is empty")
			}
			if err := config.StoreVendorKey(ctx.secrets, key); err != nil {
				return err
			}
			fmt.Fprintln(out, "Vendor key stored in keyring")
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "clear", false, "Remove the stored key")
	return cmd
}

func maskSecret(value string) string {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return ""
	case len(value) <= 8:
		return "********"
	default:
		return value[:4] + "…" + value[len(value)-2:]
	}
}
