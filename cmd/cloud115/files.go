package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cloud115 "github.com/cloud115/cloud115-go"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [dir-id]",
		Short: "List a directory (root when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
}

func runLs(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	dirID := cloud115.RootDirID
	if len(args) == 1 {
		dirID = args[0]
	}

	return printEntries(cmd, client.Storage().List(dirID))
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <keyword>",
		Short: "Search files by keyword",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().String("dir", cloud115.RootDirID, "restrict search to a directory ID")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	dirID, _ := cmd.Flags().GetString("dir")

	return printEntries(cmd, client.Storage().Search(args[0], dirID))
}

// printEntries drains a listing cursor to stdout, one line per entry, or as
// a JSON array with --json.
func printEntries(cmd *cobra.Command, it *cloud115.Iter[cloud115.FileEntry]) error {
	if flagJSON {
		entries, err := it.Collect(cmd.Context())
		if err != nil {
			return err
		}

		return printJSON(entries)
	}

	count := 0
	for it.Next(cmd.Context()) {
		e := it.Item()

		kind := "-"
		size := formatSize(e.Size)

		if e.IsDirectory {
			kind = "d"
			size = "-"
		}

		fmt.Printf("%s %10s  %-12s  %-20s %s\n", kind, size, formatTime(e.ModifiedAt), e.ID, e.Name)
		count++
	}

	if err := it.Err(); err != nil {
		return err
	}

	statusf("%d entries\n", count)

	return nil
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <file-id>",
		Short: "Show detail for a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func runStat(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	info, err := client.Storage().Stat(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(info)
	}

	kind := "file"
	if info.IsDirectory {
		kind = "directory"
	}

	fmt.Printf("Name:      %s\n", info.Name)
	fmt.Printf("Kind:      %s\n", kind)
	fmt.Printf("Pick code: %s\n", info.PickCode)

	for _, node := range info.Path {
		fmt.Printf("Path:      %s (%s)\n", node.Name, node.ID)
	}

	return nil
}

func newMkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}

	cmd.Flags().String("parent", cloud115.RootDirID, "parent directory ID")

	return cmd
}

func runMkdir(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	parent, _ := cmd.Flags().GetString("parent")

	id, err := client.Storage().MakeDir(cmd.Context(), parent, args[0])
	if err != nil {
		return err
	}

	fmt.Println(id)

	return nil
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <target-dir-id> <file-id>...",
		Short: "Move files or directories",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runMv,
	}
}

func runMv(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	return client.Storage().Move(cmd.Context(), args[0], args[1:]...)
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <file-id> <new-name>",
		Short: "Rename a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE:  runRename,
	}
}

func runRename(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	return client.Storage().Rename(cmd.Context(), map[string]string{args[0]: args[1]})
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <file-id>...",
		Short: "Delete files or directories (moved to the recycle bin)",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRm,
	}
}

func runRm(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	return client.Storage().Delete(cmd.Context(), args...)
}

func newDuCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "du",
		Short: "Show account storage usage",
		Args:  cobra.NoArgs,
		RunE:  runDu,
	}
}

func runDu(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	info, err := client.Storage().SpaceInfo(cmd.Context())
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(info)
	}

	fmt.Printf("Total:     %s\n", formatSize(info.Total))
	fmt.Printf("Used:      %s\n", formatSize(info.Used))
	fmt.Printf("Remaining: %s\n", formatSize(info.Remaining))

	return nil
}

// printJSON writes v to stdout with indentation.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
