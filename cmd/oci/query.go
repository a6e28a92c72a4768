package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	oci "github.com/ocitools/oci/pkg"
)

func newLsCmd() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List indexed files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			scope, err := scopeArg(repo, args)
			if err != nil {
				return err
			}

			count := 0
			for _, e := range repo.Store.List(scope) {
				if !recursive && e.Path != scope {
					rest := e.Path
					if scope != "" {
						rest = e.Path[len(scope)+1:]
					}
					if strings.Contains(rest, "/") {
						continue
					}
				}
				fmt.Printf("%12d  %s  %s\n", e.Size, e.HexHash(), e.Path)
				count++
			}
			if count == 0 {
				fmt.Println("No indexed files in scope.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "recurse into subdirectories")
	return cmd
}

func newGrepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grep <hash>",
		Short: "Find indexed files by digest prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			prefix := strings.ToLower(args[0])
			found := 0
			repo.Store.ForEach(func(e *oci.IndexEntry) bool {
				if strings.HasPrefix(e.HexHash(), prefix) {
					fmt.Printf("%s  %s\n", e.HexHash(), e.Path)
					found++
				}
				return true
			})
			if found == 0 {
				return fmt.Errorf("no indexed file matches digest prefix %s", prefix)
			}
			return nil
		},
	}
}

func newDuplicatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duplicates",
		Short: "List groups of indexed files with identical content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			groups := oci.FindDuplicates(repo)
			if len(groups) == 0 {
				fmt.Println("No duplicate content found.")
				return nil
			}

			var wasted uint64
			for _, g := range groups {
				fmt.Printf("%s (%s each):\n", g.Hash, oci.HumanBytes(g.Size))
				for _, p := range g.Paths {
					fmt.Printf("  %s\n", p)
				}
				wasted += uint64(len(g.Paths)-1) * g.Size
			}
			fmt.Printf("%d group(s), %s reclaimable\n", len(groups), oci.HumanBytes(wasted))
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			stats := oci.ComputeStats(repo)
			fmt.Printf("Indexed files:     %d\n", stats.TotalFiles)
			fmt.Printf("Total size:        %s\n", oci.HumanBytes(stats.TotalBytes))
			fmt.Printf("Unique hashes:     %d\n", stats.UniqueHashes)
			fmt.Printf("Duplicate files:   %d (in %d group(s))\n", stats.DuplicateFiles, stats.DuplicateGroups)
			fmt.Printf("Wasted space:      %s\n", oci.HumanBytes(stats.WastedBytes))
			fmt.Printf("Storage efficiency: %.1f%%\n", stats.EfficiencyPercent())
			return nil
		},
	}
}
