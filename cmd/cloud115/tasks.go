package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	cloud115 "github.com/cloud115/cloud115-go"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage offline download tasks",
	}

	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskAddCmd())
	cmd.AddCommand(newTaskRmCmd())
	cmd.AddCommand(newTaskClearCmd())

	return cmd
}

func newTaskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List offline download tasks",
		Args:  cobra.NoArgs,
		RunE:  runTaskList,
	}
}

func runTaskList(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	it := client.Offline().List()

	if flagJSON {
		tasks, err := it.Collect(cmd.Context())
		if err != nil {
			return err
		}

		return printJSON(tasks)
	}

	count := 0
	for it.Next(cmd.Context()) {
		t := it.Item()
		fmt.Printf("%-8s %5.1f%% %10s  %-40s %s\n",
			t.Status, t.Progress, formatSize(t.Size), t.ID, t.Name)
		count++
	}

	if err := it.Err(); err != nil {
		return err
	}

	statusf("%d tasks\n", count)

	return nil
}

func newTaskAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <url>...",
		Short: "Add download tasks from magnet, ed2k, or HTTP(S) URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTaskAdd,
	}
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	results, err := client.Offline().AddURLs(cmd.Context(), args...)

	var failed int

	for _, r := range results {
		if r.Err != nil {
			failed++

			fmt.Printf("FAIL  %s: %v\n", r.Source, r.Err)

			continue
		}

		fmt.Printf("OK    %s", r.Source)

		if r.TaskID != "" {
			fmt.Printf(" (%s)", r.TaskID)
		}

		fmt.Println()
	}

	if err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(results))
	}

	return nil
}

func newTaskRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <info-hash>...",
		Short: "Delete download tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTaskRm,
	}

	cmd.Flags().Bool("files", false, "also delete downloaded files")

	return cmd
}

func runTaskRm(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	deleteFiles, _ := cmd.Flags().GetBool("files")

	return client.Offline().Delete(cmd.Context(), args, deleteFiles)
}

func newTaskClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear tasks in bulk",
		Args:  cobra.NoArgs,
		RunE:  runTaskClear,
	}

	cmd.Flags().String("scope", "completed", "which tasks to clear: completed, all, failed, running")
	cmd.Flags().Bool("files", false, "also delete downloaded files (completed and all scopes)")

	return cmd
}

func runTaskClear(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	scope, _ := cmd.Flags().GetString("scope")
	withFiles, _ := cmd.Flags().GetBool("files")

	flag, err := clearFlag(scope, withFiles)
	if err != nil {
		return err
	}

	return client.Offline().Clear(cmd.Context(), flag)
}

// clearFlag maps the CLI scope to the service's clear flag.
func clearFlag(scope string, withFiles bool) (cloud115.ClearFlag, error) {
	switch scope {
	case "completed":
		if withFiles {
			return cloud115.ClearCompletedAndFiles, nil
		}

		return cloud115.ClearCompleted, nil
	case "all":
		if withFiles {
			return cloud115.ClearAllAndFiles, nil
		}

		return cloud115.ClearAll, nil
	case "failed":
		return cloud115.ClearFailed, nil
	case "running":
		return cloud115.ClearRunning, nil
	default:
		return 0, errors.New("scope must be one of: completed, all, failed, running")
	}
}
