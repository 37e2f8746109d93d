// Command kvctl is the operator CLI for a running kv-server, replacing
// cmd/admin-cli's hardcoded status/compact/wal/schema commands (which
// printed fixed strings rather than talking to a server) with real calls
// through internal/api/client against the branch/version/KV HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"versionedkv/internal/api/client"
)

var (
	serverAddr string
	authToken  string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "kvctl",
	Short: "Command-line client for the versioned key-value engine",
}

func newClient() *client.Client {
	return client.New(&client.Config{
		BaseURL:    serverAddr,
		Token:      authToken,
		Timeout:    timeout,
		RetryCount: 2,
	})
}

func ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

var getCmd = &cobra.Command{
	Use:   "get <branch> <key>",
	Short: "Get the value for a key on a branch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cancel := ctx()
		defer cancel()
		value, err := newClient().Get(c, args[0], []byte(args[1]))
		if err != nil {
			return err
		}
		fmt.Println(string(value))
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put <branch> <key> <value>",
	Short: "Write a key/value pair on a branch",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cancel := ctx()
		defer cancel()
		return newClient().Put(c, args[0], []byte(args[1]), []byte(args[2]))
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <branch> <key>",
	Short: "Remove a key from a branch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cancel := ctx()
		defer cancel()
		return newClient().Remove(c, args[0], []byte(args[1]))
	},
}

var rangeCmd = &cobra.Command{
	Use:   "range <branch> [lower] [upper]",
	Short: "List key/value pairs on a branch within [lower, upper]",
	Args:  cobra.RangeArgs(1, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var lower, upper []byte
		if len(args) > 1 {
			lower = []byte(args[1])
		}
		if len(args) > 2 {
			upper = []byte(args[2])
		}
		c, cancel := ctx()
		defer cancel()
		entries, err := newClient().Range(c, args[0], lower, upper)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\n", e.Key, e.Value)
		}
		return nil
	},
}

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Branch administration",
}

var branchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all branches",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cancel := ctx()
		defer cancel()
		branches, err := newClient().ListBranches(c)
		if err != nil {
			return err
		}
		for _, b := range branches {
			fmt.Println(b)
		}
		return nil
	},
}

var branchCreateCmd = &cobra.Command{
	Use:   "create <name> <base-version>",
	Short: "Create a branch rooted at base-version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		c, cancel := ctx()
		defer cancel()
		return newClient().CreateBranch(c, args[0], "", args[1], force)
	},
}

var branchRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cancel := ctx()
		defer cancel()
		return newClient().RemoveBranch(c, args[0])
	},
}

var branchMergeCmd = &cobra.Command{
	Use:   "merge <branch> <target>",
	Short: "Merge branch into target",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		c, cancel := ctx()
		defer cancel()
		return newClient().MergeBranch(c, args[0], args[1], force)
	},
}

var branchRebaseCmd = &cobra.Command{
	Use:   "rebase <branch> <base-version>",
	Short: "Rebase branch onto base-version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cancel := ctx()
		defer cancel()
		return newClient().RebaseBranch(c, args[0], args[1])
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Version administration",
}

var versionListCmd = &cobra.Command{
	Use:   "list <branch>",
	Short: "List versions on a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cancel := ctx()
		defer cancel()
		versions, err := newClient().ListVersions(c, args[0])
		if err != nil {
			return err
		}
		for _, v := range versions {
			fmt.Println(v)
		}
		return nil
	},
}

var versionCreateCmd = &cobra.Command{
	Use:   "create <branch> <name>",
	Short: "Stamp a new version on a branch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cancel := ctx()
		defer cancel()
		return newClient().CreateVersion(c, args[0], args[1])
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Reclaim unreachable versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		reserve, _ := cmd.Flags().GetInt("reserve")
		var reservePtr *int
		if cmd.Flags().Changed("reserve") {
			reservePtr = &reserve
		}
		c, cancel := ctx()
		defer cancel()
		return newClient().Prune(c, reservePtr)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8080", "kv-server base URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "bearer token for authenticated servers")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	branchCreateCmd.Flags().Bool("force", false, "overwrite an existing branch")
	branchMergeCmd.Flags().Bool("force", false, "merge even with conflicts")
	pruneCmd.Flags().Int("reserve", 0, "number of most recent versions to keep per branch")

	branchCmd.AddCommand(branchListCmd, branchCreateCmd, branchRemoveCmd, branchMergeCmd, branchRebaseCmd)
	versionCmd.AddCommand(versionListCmd, versionCreateCmd)

	rootCmd.AddCommand(getCmd, putCmd, removeCmd, rangeCmd, branchCmd, versionCmd, pruneCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
