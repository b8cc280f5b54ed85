package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/webbench/benchd/internal/catalog"
	"github.com/webbench/benchd/internal/environment"
)

func newBenchmarksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchmarks",
		Short: "List the benchmarks available in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := environment.Load()
			cat, err := catalog.NewFileCatalog(cfg.BenchmarkDir)
			if err != nil {
				return err
			}

			for _, name := range cat.Names() {
				version, err := cat.VersionOf(name)
				if err != nil {
					return err
				}
				tasks, err := cat.TasksFor(name)
				if err != nil {
					return err
				}
				fmt.Printf("%s\t%s\t%d tasks\n", name, version, len(tasks))
			}
			return nil
		},
	}
	return cmd
}
