package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	oci "github.com/ocitools/oci/pkg"
)

const toolVersion = "0.3.0"

var (
	flagVerbose int
	flagDebug   string
)

var rootCmd = &cobra.Command{
	Use:     "oci",
	Short:   "File identity index: track, compare and deduplicate files by content digest",
	Long: `oci maintains a content-hash index of a directory tree. It detects added,
modified and removed files without storing file contents, finds duplicate
content by digest, and can quarantine files already present in another index.`,
	Version:       toolVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		oci.SetVerboseLevel(flagVerbose)
		if flagDebug != "" {
			oci.SetDebugFlags(flagDebug)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().CountVar(&flagVerbose, "verbose", "increase verbosity (repeatable)")
	rootCmd.PersistentFlags().StringVar(&flagDebug, "debug", "", "comma-separated debug flags")

	rootCmd.AddCommand(
		newInitCmd(),
		newIgnoreCmd(),
		newStatusCmd(),
		newUpdateCmd(),
		newLsCmd(),
		newGrepCmd(),
		newDuplicatesCmd(),
		newStatsCmd(),
		newPruneCmd(),
		newResetCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openRepo opens the repository containing the working directory.
func openRepo() (*oci.Repository, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return oci.Open(cwd, toolVersion)
}

// scopeArg converts an optional path argument (relative to the working
// directory) into a repository-relative scope. No argument means the working
// directory itself, which at the repository root is the whole repository.
func scopeArg(repo *oci.Repository, args []string) (string, error) {
	path := "."
	if len(args) == 1 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return repo.RelPath(abs)
}

// confirm asks a y/N question on the terminal; anything but an explicit yes
// declines.
func confirm(prompt string) bool {
	fmt.Printf("%s. Continue? [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
