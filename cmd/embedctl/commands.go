package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/snow-ghost/embedcfg/collection"
	"github.com/snow-ghost/embedcfg/embeddings"
	"github.com/snow-ghost/embedcfg/vectordb"
	"github.com/spf13/cobra"
)

func providersCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List registered embedding providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMETRIC\tDIMENSION\tCONFIG")
			for _, name := range a.registry.Names() {
				ef, err := a.registry.Get(name)
				if err != nil {
					return err
				}
				metric := "-"
				if m, err := ef.DefaultMetric(); err == nil {
					metric = m.String()
				}
				stored, err := embeddings.MarshalStoredJSON(ef)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", name, metric, embeddings.DimensionOf(ef), stored)
			}
			return w.Flush()
		},
	}
}

type embedOutput struct {
	Provider   string                    `json:"provider"`
	Metric     embeddings.DistanceMetric `json:"metric,omitempty"`
	Dimension  int                       `json:"dimension"`
	Embeddings embeddings.Embeddings     `json:"embeddings"`
}

func embedCmd(current func() *app) *cobra.Command {
	var (
		provider    string
		overrides   []string
		batchSize   int
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "embed [flags] TEXT...",
		Short: "Embed texts with a registered provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			cfg, err := parseOverrides(overrides)
			if err != nil {
				return err
			}
			ef, err := a.embeddingFunction(provider, cfg)
			if err != nil {
				return err
			}

			batches := embeddings.Batches(embeddings.Documents(args...), batchSize)
			results, err := embeddings.GenerateAll(cmd.Context(), ef, batches, concurrency)
			if err != nil {
				return err
			}

			out := embedOutput{Provider: ef.Name()}
			for _, vectors := range results {
				out.Embeddings = append(out.Embeddings, vectors...)
			}
			out.Dimension = out.Embeddings.Dimension()
			if m, err := ef.DefaultMetric(); err == nil {
				out.Metric = m
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", embeddings.DefaultProviderName, "Registered provider name")
	cmd.Flags().StringArrayVarP(&overrides, "set", "s", nil, "Config override as key=value, repeatable")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Texts per request; 0 sends all at once")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Requests in flight")
	return cmd
}

type collectionOutput struct {
	Name     string         `json:"name,omitempty"`
	ID       string         `json:"id,omitempty"`
	Config   any            `json:"config"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func collectionCmd(current func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Validate and apply collection configs",
	}
	cmd.AddCommand(
		collectionCreateCmd(current),
		collectionUpdateCmd(current),
		collectionIndexCmd(current),
	)
	return cmd
}

func collectionCreateCmd(current func() *app) *cobra.Command {
	var file, apply string

	cmd := &cobra.Command{
		Use:   "create --file FILE [--apply NAME]",
		Short: "Resolve a create config; with --apply, create the collection in Chroma",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			cfg, err := collection.LoadCreateYAML(file, a.registry)
			if err != nil {
				return err
			}

			if apply == "" {
				meta, err := cfg.Metadata()
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), collectionOutput{Config: cfg.Document(), Metadata: meta})
			}

			store, err := a.chroma()
			if err != nil {
				return err
			}
			created, err := store.CreateCollection(cmd.Context(), apply, cfg)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), describe(created))
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML create config")
	cmd.Flags().StringVar(&apply, "apply", "", "Create the collection under this name")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func collectionUpdateCmd(current func() *app) *cobra.Command {
	var file, apply string

	cmd := &cobra.Command{
		Use:   "update --file FILE [--apply NAME]",
		Short: "Resolve an update config; with --apply, update the collection in Chroma",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			cfg, err := collection.LoadUpdateYAML(file, a.registry)
			if err != nil {
				return err
			}

			if apply == "" {
				meta, err := cfg.Metadata()
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), collectionOutput{Config: cfg.Document(), Metadata: meta})
			}

			store, err := a.chroma()
			if err != nil {
				return err
			}
			updated, err := store.UpdateCollection(cmd.Context(), apply, cfg)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), describe(updated))
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML update config")
	cmd.Flags().StringVar(&apply, "apply", "", "Update the collection with this name")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func collectionIndexCmd(current func() *app) *cobra.Command {
	var (
		file string
		drop bool
		opts vectordb.IndexOptions
	)

	cmd := &cobra.Command{
		Use:   "index NAME --file FILE",
		Short: "Create or drop a RediSearch vector index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			indexes, err := a.redisIndexes()
			if err != nil {
				return err
			}
			if drop {
				return indexes.DropIndex(cmd.Context(), args[0])
			}

			cfg, err := collection.LoadCreateYAML(file, a.registry)
			if err != nil {
				return err
			}
			if err := indexes.CreateIndex(cmd.Context(), args[0], cfg, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created index %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML create config")
	cmd.Flags().BoolVar(&drop, "drop", false, "Drop the index instead of creating it")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "Hash key prefix; defaults to NAME:")
	cmd.Flags().StringVar(&opts.Field, "field", "", "Vector hash field; defaults to embedding")
	cmd.Flags().IntVar(&opts.Dimension, "dimension", 0, "Vector dimension; defaults to the provider's")
	return cmd
}

func describe(c *vectordb.Collection) collectionOutput {
	return collectionOutput{
		Name:     c.Name,
		ID:       c.ID,
		Config:   c.Config.Document(),
		Metadata: c.Metadata,
	}
}
