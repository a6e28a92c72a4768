package main

import (
	"fmt"

	"github.com/spf13/cobra"

	oci "github.com/ocitools/oci/pkg"
)

func newPruneCmd() *cobra.Command {
	var (
		noIgnore     bool
		localIgnored bool
		restore      bool
		purge        bool
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "prune [source]",
		Short: "Quarantine files already indexed elsewhere, or ignored",
		Long: `prune moves files into the quarantine area (.oci/pruneyard) instead of
deleting them. With a source index path, local files whose content digest
already exists in the source are quarantined as duplicates, and files matching
the source's ignore rules as source-ignored. --ignored additionally
quarantines files the local rules ignore.

--restore moves everything back; --purge deletes the quarantine permanently.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			engine := oci.NewPruneEngine(repo)

			if restore {
				return runRestore(engine)
			}
			if purge {
				purged, err := engine.Purge(force, confirm)
				if err != nil {
					return err
				}
				if purged == 0 {
					fmt.Println("Nothing quarantined.")
				} else {
					fmt.Printf("Permanently deleted %d quarantined file(s)\n", purged)
				}
				return nil
			}

			opts := oci.PruneOptions{
				NoIgnore:            noIgnore,
				IncludeLocalIgnored: localIgnored,
			}
			if len(args) == 1 {
				source, err := oci.OpenRoot(args[0], toolVersion)
				if err != nil {
					return fmt.Errorf("source index: %w", err)
				}
				defer source.Close()
				opts.Source = source
			} else if !localIgnored {
				return fmt.Errorf("nothing to prune: give a source index, or --ignored")
			}

			candidates, err := engine.Plan(opts)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				fmt.Println("Nothing to prune.")
				return nil
			}

			var bytes uint64
			for _, c := range candidates {
				fmt.Printf("%s (%s)\n", c.Path, c.Reason)
				bytes += c.Size
			}
			if !force {
				prompt := fmt.Sprintf("This will quarantine %d file(s), %s", len(candidates), oci.HumanBytes(bytes))
				if !confirm(prompt) {
					return fmt.Errorf("prune cancelled")
				}
			}

			result, err := engine.Commit(candidates)
			if err != nil {
				return err
			}
			fmt.Printf("Quarantined %d file(s), %s. Restore with 'oci prune --restore'.\n",
				len(result.Moved), oci.HumanBytes(result.Bytes))
			return nil
		},
	}

	cmd.Flags().BoolVar(&noIgnore, "no-ignore", false, "do not quarantine files matching the source's ignore rules")
	cmd.Flags().BoolVar(&localIgnored, "ignored", false, "also quarantine files the local ignore rules match")
	cmd.Flags().BoolVar(&restore, "restore", false, "move quarantined files back to their original paths")
	cmd.Flags().BoolVar(&purge, "purge", false, "permanently delete the quarantine")
	cmd.Flags().BoolVar(&force, "force", false, "skip confirmation prompts")
	return cmd
}

func runRestore(engine *oci.PruneEngine) error {
	result, err := engine.Restore()
	if err != nil {
		return err
	}
	fmt.Printf("Restored %d file(s), %d re-indexed", len(result.Restored), result.Reindexed)
	if result.Rehashed > 0 {
		fmt.Printf(" (%d rehashed)", result.Rehashed)
	}
	fmt.Println()
	return nil
}
