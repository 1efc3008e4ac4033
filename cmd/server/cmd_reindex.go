package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the store and exit",
		Long:  "Rebuild the search index from the store and exit. Only useful with a persistent backend (search.backend=sqlite); the memory index is rebuilt on every serve.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			if cfg.Search.Backend == "memory" {
				log.Warn().Msg("memory search index is discarded on exit")
			}
			a, err := newApp(log)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			defer a.Close()
			if err := a.reindex(cmd.Context()); err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			return nil
		},
	}
}
