package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"scriptreel/internal/config"
	"scriptreel/internal/ipc"
)

type rootFlags struct {
	config string
	api    string
	token  string
	json   bool
}

type commandContext struct {
	flags *rootFlags
	// secrets backs the vendor key fallback; tests swap in a mock keyring.
	secrets config.SecretStore

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(flags *rootFlags) *commandContext {
	return &commandContext{flags: flags, secrets: config.Keyring()}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		// The keyring is optional; a locked or absent one leaves the key unset.
		_ = cfg.ApplyKeyringFallback(c.secrets)
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) jsonOutput() bool {
	return c.flags != nil && c.flags.json
}

// client returns an API client for the configured daemon.
func (c *commandContext) client() (*ipc.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	bind := strings.TrimSpace(c.flags.api)
	if bind == "" {
		bind = cfg.Paths.APIBind
	}
	token := strings.TrimSpace(c.flags.token)
	if token == "" {
		token = cfg.Paths.APIToken
	}
	return ipc.New(bind, ipc.WithToken(token))
}

// withClient runs fn against the daemon and rewrites connection failures
// into a hint to start it.
func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	client, err := c.client()
	if err != nil {
		return wrapDialError(err)
	}
	return wrapDialError(fn(client))
}

func wrapDialError(err error) error {
	if err == nil || !ipc.IsUnavailable(err) {
		return err
	}
	return fmt.Errorf("%w; start the daemon with `scriptreel start`", err)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
