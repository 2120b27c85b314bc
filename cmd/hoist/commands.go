package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"hoist/internal/api"
	"hoist/internal/config"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and job queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			state := "stopped"
			if status.Running {
				state = fmt.Sprintf("running (pid %d, %d workers)", status.PID, status.Workers)
			}
			fmt.Fprintf(out, "Daemon: %s\n", state)
			fmt.Fprintf(out, "Database: %s\n", status.JobDBPath)
			if status.LastError != "" {
				fmt.Fprintf(out, "Last error: %s\n", status.LastError)
			}

			names := make([]string, 0, len(status.JobStats))
			for name := range status.JobStats {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([]table.Row, 0, len(names))
			for _, name := range names {
				rows = append(rows, table.Row{name, status.JobStats[name]})
			}
			fmt.Fprintln(out, renderTable(table.Row{"Status", "Count"}, rows, 2))
			return nil
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter, watchedFilter, starredFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List download jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobs, err := client.ListJobs(cmd.Context(), statusFilter, watchedFilter, starredFilter)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}

			rows := make([]table.Row, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, table.Row{
					job.ID,
					jobTitle(job),
					job.Status,
					fmt.Sprintf("%.0f%%", job.Progress),
					flagMarks(job),
					job.CreatedAt,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				table.Row{"ID", "Title", "Status", "Progress", "Flags", "Created"}, rows, 4))
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "filter by status (pending, running, completed, failed)")
	cmd.Flags().StringVar(&watchedFilter, "watched", "", "filter by watched flag (true/false)")
	cmd.Flags().StringVar(&starredFilter, "starred", "", "filter by starred flag (true/false)")
	return cmd
}

func jobTitle(job api.JobView) string {
	if title := strings.TrimSpace(job.Title); title != "" {
		return title
	}
	return job.SourceURL
}

func flagMarks(job api.JobView) string {
	marks := ""
	if job.Watched {
		marks += "w"
	}
	if job.Starred {
		marks += "*"
	}
	return marks
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add URL",
		Short: "Submit a download job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			view, err := client.CreateJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s\n", view.ID)
			return nil
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"remove"},
		Short:   "Remove a finished job and its files",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			result, err := client.RemoveJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", result.ID)
			return nil
		},
	}
}

func newFlagsCommand(ctx *commandContext) *cobra.Command {
	var watched, starred string

	cmd := &cobra.Command{
		Use:   "flags ID",
		Short: "Update a job's watched/starred flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			update := api.FlagsUpdate{}
			var err error
			if update.Watched, err = parseOptionalBool("watched", watched); err != nil {
				return err
			}
			if update.Starred, err = parseOptionalBool("starred", starred); err != nil {
				return err
			}
			if update.Watched == nil && update.Starred == nil {
				return fmt.Errorf("pass --watched and/or --starred")
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}
			view, err := client.UpdateFlags(cmd.Context(), args[0], update)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s: watched=%t starred=%t\n",
				view.ID, view.Watched, view.Starred)
			return nil
		},
	}
	cmd.Flags().StringVar(&watched, "watched", "", "set watched flag (true/false)")
	cmd.Flags().StringVar(&starred, "starred", "", "set starred flag (true/false)")
	return cmd
}

func parseOptionalBool(name, value string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return nil, nil
	case "true", "1", "yes":
		enabled := true
		return &enabled, nil
	case "false", "0", "no":
		enabled := false
		return &enabled, nil
	default:
		return nil, fmt.Errorf("invalid --%s value %q", name, value)
	}
}

func newFilesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "files ID",
		Short: "List a job's downloaded files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			files, err := client.ListFiles(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(files.Files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No files")
				return nil
			}
			for _, file := range files.Files {
				fmt.Fprintln(cmd.OutOrStdout(), file)
			}
			return nil
		},
	}
}

func newNotifyTestCommand(ctx *commandContext) *cobra.Command {
	var chatID int64

	cmd := &cobra.Command{
		Use:   "notify-test",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			detail, err := client.NotifyTest(cmd.Context(), chatID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), detail)
			return nil
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat-id", 0, "chat to notify")
	return cmd
}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "init [PATH]",
		Short: "Write a sample configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample config to %s\n", path)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config OK (download root %s)\n", cfg.Paths.DownloadRoot)
			return nil
		},
	})

	return configCmd
}
