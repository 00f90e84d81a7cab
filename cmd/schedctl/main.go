package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var (
	serverAddr string
	client     *resty.Client
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "schedctl",
		Short: "Control a running scheduler daemon",
		PersistentPreRun: func(*cobra.Command, []string) {
			client = resty.New().
				SetBaseURL(serverAddr).
				SetTimeout(10 * time.Second)
		},
	}
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "http://localhost:8080", "scheduler daemon address")

	rootCmd.AddCommand(
		statsCmd(),
		pendingCmd(),
		taskCmd(),
		cancelCmd(),
		remindCmd(),
		remindersCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show scheduler statistics",
		RunE: func(*cobra.Command, []string) error {
			return getJSON("/tasks/stats", nil)
		},
	}
}

func pendingCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending tasks in priority order",
		RunE: func(*cobra.Command, []string) error {
			return getJSON("/tasks/pending", map[string]string{"limit": fmt.Sprint(limit)})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max tasks to list")

	return cmd
}

func taskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task <id>",
		Short: "Show the state of a single task",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return getJSON("/tasks/"+args[0], nil)
		},
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a scheduled task",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			resp, err := client.R().Delete("/tasks/" + args[0])
			if err != nil {
				return err
			}
			if resp.IsError() {
				return fmt.Errorf("server returned %s: %s", resp.Status(), resp.Body())
			}

			fmt.Println("cancelled")
			return nil
		},
	}
}

func remindCmd() *cobra.Command {
	var (
		in       string
		at       string
		interval string
		priority string
	)
	cmd := &cobra.Command{
		Use:   "remind <message>",
		Short: "Create a reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			body := map[string]string{
				"message":  args[0],
				"priority": priority,
			}
			switch {
			case interval != "":
				body["interval"] = interval
			case at != "":
				body["at"] = at
			case in != "":
				body["in"] = in
			default:
				return fmt.Errorf("one of --in, --at or --every is required")
			}

			resp, err := client.R().
				SetHeader("Content-Type", "application/json").
				SetBody(body).
				Post("/reminders")
			if err != nil {
				return err
			}
			if resp.IsError() {
				return fmt.Errorf("server returned %s: %s", resp.Status(), resp.Body())
			}

			fmt.Println(string(resp.Body()))
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "fire after a duration, e.g. 10m")
	cmd.Flags().StringVar(&at, "at", "", "fire at an RFC3339 time")
	cmd.Flags().StringVar(&interval, "every", "", "fire repeatedly at this interval")
	cmd.Flags().StringVar(&priority, "priority", "normal", "low, normal, high or critical")

	return cmd
}

func remindersCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "List upcoming reminders",
		RunE: func(*cobra.Command, []string) error {
			return getJSON("/reminders", map[string]string{"limit": fmt.Sprint(limit)})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max reminders to list")

	return cmd
}

func getJSON(path string, query map[string]string) error {
	req := client.R()
	if len(query) > 0 {
		req = req.SetQueryParams(query)
	}

	resp, err := req.Get(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("server returned %s: %s", resp.Status(), resp.Body())
	}

	var pretty any
	if err = json.Unmarshal(resp.Body(), &pretty); err != nil {
		return fmt.Errorf("unexpected response: %w", err)
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))
	return nil
}
