package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/snow-ghost/embedcfg/config"
	"github.com/snow-ghost/embedcfg/embeddings"
	"github.com/snow-ghost/embedcfg/pkg/logging"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// command is the root command together with the app its pre-run hook assembles
type command struct {
	*cobra.Command
	state *app
}

func newRootCmd() *command {
	var (
		configPath string
		verbose    bool
	)

	c := &command{}
	c.Command = &cobra.Command{
		Use:          "embedctl",
		Short:        "Inspect embedding providers and collection configs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if verbose {
				settings.Log.Level = "debug"
			}
			logger, err := logging.NewLogger(settings.Log)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			c.state, err = newApp(settings, logger)
			return err
		},
	}

	c.PersistentFlags().StringVar(&configPath, "config", "", "Path to the settings file")
	c.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	current := func() *app { return c.state }
	c.AddCommand(
		providersCmd(current),
		embedCmd(current),
		collectionCmd(current),
	)
	return c
}

// Execute runs the command line and then closes the app, including when the
// command failed
func (c *command) Execute() error {
	err := c.Command.Execute()
	if c.state != nil {
		_ = c.state.logger.Sync()
		err = errors.Join(err, c.state.close(context.Background()))
	}
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseOverrides turns key=value flags into a Config. Values are read as YAML
// scalars, so numbers and booleans keep their types.
func parseOverrides(pairs []string) (embeddings.Config, error) {
	cfg := make(embeddings.Config, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid override %q, expected key=value", pair)
		}
		cfg[key] = scalar(raw)
	}
	return cfg, nil
}

func scalar(raw string) any {
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	switch value.(type) {
	case int, float64, bool:
		return value
	}
	return raw
}
