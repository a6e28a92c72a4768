package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	oci "github.com/ocitools/oci/pkg"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty index in the current directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}

			repo, err := oci.Init(cwd, toolVersion)
			if err != nil {
				if errors.Is(err, oci.ErrAlreadyInitialized) {
					return fmt.Errorf("index already exists in %s", cwd)
				}
				return err
			}
			defer repo.Close()

			fmt.Printf("Initialized empty index in %s\n", repo.ControlDir())
			fmt.Println("Run 'oci update' to index the current tree.")
			return nil
		},
	}
}

func newIgnoreCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "ignore [pattern]",
		Short: "Add an ignore pattern (default: the current directory)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			if list {
				for _, pattern := range repo.Ignore.Patterns() {
					fmt.Println(pattern)
				}
				return nil
			}

			var pattern string
			if len(args) == 1 {
				pattern = args[0]
			} else {
				if pattern, err = cwdIgnorePattern(repo); err != nil {
					return err
				}
			}

			// Validate before touching the rule file; a bad pattern must
			// never land on disk.
			if _, err := oci.NewIgnoreMatcher([]string{pattern}); err != nil {
				return err
			}
			if err := oci.AppendIgnorePattern(repo.IgnoreFilePath(), pattern); err != nil {
				return err
			}
			fmt.Printf("Added ignore pattern: %s\n", pattern)
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list the current patterns instead of adding")
	return cmd
}

// cwdIgnorePattern is the pattern added by a bare "oci ignore": the working
// directory as a repo-relative, directory-anchored rule.
func cwdIgnorePattern(repo *oci.Repository) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	rel, err := repo.RelPath(cwd)
	if err != nil {
		return "", err
	}
	if rel == "" {
		return "", fmt.Errorf("refusing to ignore the repository root; give a pattern instead")
	}
	return rel + "/", nil
}

func newResetCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the index, config, ignore rules and any quarantined files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.Reset(force, confirm); err != nil {
				return err
			}
			fmt.Printf("Removed index from %s\n", repo.Root)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip the confirmation prompt")
	return cmd
}
