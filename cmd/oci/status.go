package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	oci "github.com/ocitools/oci/pkg"
)

var (
	addedColor    = color.New(color.FgGreen)
	modifiedColor = color.New(color.FgYellow)
	removedColor  = color.New(color.FgRed)
	ignoredColor  = color.New(color.Faint)
)

func newStatusCmd() *cobra.Command {
	var recursive, showIgnored bool

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show files that differ from the index",
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

			result, err := oci.Status(repo, oci.StatusOptions{
				Start:       scope,
				Recursive:   recursive,
				ShowIgnored: showIgnored,
			})
			if err != nil {
				return err
			}

			for _, se := range result.Added {
				addedColor.Printf("+ %s\n", se.Path)
			}
			for _, se := range result.Modified {
				modifiedColor.Printf("U %s\n", se.Path)
			}
			for _, se := range result.Removed {
				removedColor.Printf("- %s\n", se.Path)
			}
			if showIgnored {
				for _, se := range result.IgnoredPaths {
					path := se.Path
					if se.IsDir {
						path += "/"
					}
					ignoredColor.Printf("I %s\n", path)
				}
			}

			if !result.HasChanges() {
				fmt.Printf("Up to date: %d file(s) unchanged\n", result.Unchanged)
			} else {
				fmt.Printf("%d change(s), %d unchanged, %d ignored\n",
					result.TotalChanges(), result.Unchanged, result.Ignored)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "recurse into subdirectories of the given path")
	cmd.Flags().BoolVarP(&showIgnored, "show-ignored", "v", false, "also list ignored paths")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var recursive, verbose bool

	cmd := &cobra.Command{
		Use:   "update [path]",
		Short: "Reconcile the index with the filesystem",
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

			result, err := oci.Update(repo, oci.UpdateOptions{
				Start:     scope,
				Recursive: recursive,
			})
			if err != nil {
				return err
			}

			if verbose {
				for _, se := range result.Added {
					addedColor.Printf("+ %s\n", se.Path)
				}
				for _, se := range result.Updated {
					modifiedColor.Printf("U %s\n", se.Path)
				}
				for _, se := range result.Removed {
					removedColor.Printf("- %s\n", se.Path)
				}
			}

			if result.TotalChanges() == 0 {
				fmt.Printf("Up to date: %d file(s) unchanged\n", result.Unchanged)
				return nil
			}
			fmt.Printf("Indexed %d added, %d updated, %d removed", len(result.Added), len(result.Updated), len(result.Removed))
			if result.Refreshed > 0 {
				fmt.Printf(" (%d metadata refresh(es))", result.Refreshed)
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "recurse into subdirectories of the given path")
	cmd.Flags().BoolVarP(&verbose, "show-changes", "v", false, "list each committed change")
	return cmd
}
