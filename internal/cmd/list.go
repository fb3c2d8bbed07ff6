package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nc9/taskmux/internal/orchestrator"
	"github.com/nc9/taskmux/internal/output"
	"github.com/nc9/taskmux/internal/style"
	"github.com/nc9/taskmux/internal/ui"
)

var (
	statusJSON    bool
	inspectFormat string
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: GroupSession,
	Short:   "List configured tasks and their state",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		printTaskList(cmd.OutOrStdout(), p.mgr.Status(cmd.Context()))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: GroupSession,
	Short:   "Show session status",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		report := p.mgr.Status(cmd.Context())
		out := cmd.OutOrStdout()
		if statusJSON {
			return output.WriteJSON(out, report)
		}

		state := style.Dim.Render("Stopped")
		if report.SessionExists {
			state = style.Success.Render("Running")
		}
		fmt.Fprintf(out, "Session '%s': %s\n", report.SessionName, state)
		if !report.SessionExists {
			return nil
		}
		active := 0
		for _, t := range report.Tasks {
			if t.Running {
				active++
			}
		}
		fmt.Fprintf(out, "Active tasks: %d\n", active)
		printTaskList(out, report)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	GroupID: GroupSession,
	Short:   "Check the health of every task",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		exists, err := p.mgr.Host().SessionExists(p.mgr.Snapshot().Session)
		if err != nil {
			return err
		}
		if !exists {
			fmt.Fprintln(out, style.Warning.Render("No session running"))
			return nil
		}

		results := p.mgr.CheckHealth(cmd.Context())
		tbl := style.NewTable(
			style.Column{Name: "Status", Width: 6, Align: style.AlignCenter},
			style.Column{Name: "Task", Width: 20},
			style.Column{Name: "Health", Width: 10},
		).SetIndent("")
		healthy := 0
		for _, r := range results {
			icon := style.ErrorPrefix
			if r.Healthy {
				icon = style.SuccessPrefix
				healthy++
			}
			tbl.AddRow(icon, r.Name, style.Health(r.Running, r.Healthy))
		}
		fmt.Fprint(out, tbl.Render())
		fmt.Fprintf(out, "Health: %d/%d tasks healthy\n", healthy, len(results))
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:     "inspect <task>",
	GroupID: GroupSession,
	Short:   "Show a task's definition and live pane details",
	Long: `Print a task's definition together with its pane details (pid, current
command and path, window and pane ids) as JSON or YAML.

The format defaults to $TASKMUX_OUTPUT_FORMAT, then json.`,
	Args: requireTask,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.Validate(inspectFormat); err != nil {
			return err
		}
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		info, err := p.mgr.Inspect(cmd.Context(), args[0])
		if err != nil {
			return report(cmd, err)
		}
		return output.Write(cmd.OutOrStdout(), info, output.ResolveFormat(inspectFormat))
	},
}

// printTaskList renders one row per configured task in config order.
func printTaskList(w io.Writer, report orchestrator.StatusReport) {
	fmt.Fprintf(w, "Session: %s\n", style.Bold.Render(report.SessionName))
	fmt.Fprintln(w, strings.Repeat("-", 70))
	if len(report.Tasks) == 0 {
		fmt.Fprintln(w, "No tasks configured")
		return
	}

	cmdWidth := ui.Width(100) - 2 - 8 - 16 - 3
	if cmdWidth < 20 {
		cmdWidth = 20
	}
	tbl := style.NewTable(
		style.Column{Name: "", Width: 1},
		style.Column{Name: "Status", Width: 8},
		style.Column{Name: "Task", Width: 16},
		style.Column{Name: "Command", Width: cmdWidth},
	).SetIndent("").SetHeaderSeparator(false)
	for _, t := range report.Tasks {
		tbl.AddRow(taskIcon(t), taskStateLabel(t), t.Name, taskSummary(t))
	}
	fmt.Fprint(w, tbl.Render())
}

func taskIcon(t orchestrator.TaskStatus) string {
	switch {
	case t.Running && t.Healthy:
		return style.Green.Render("●")
	case t.Running:
		return style.Red.Render("●")
	default:
		return style.Dim.Render("○")
	}
}

func taskStateLabel(t orchestrator.TaskStatus) string {
	switch {
	case t.State == orchestrator.StateStarting || t.State == orchestrator.StateStopping:
		return style.StateLabel(string(t.State))
	case t.Running && t.Healthy:
		return style.StateLabel("healthy")
	case t.Running:
		return style.StateLabel("running")
	default:
		return style.StateLabel("stopped")
	}
}

// taskSummary is the command followed by the flags that differ from defaults.
func taskSummary(t orchestrator.TaskStatus) string {
	var b strings.Builder
	b.WriteString(t.Command)
	if !t.AutoStart {
		b.WriteString(" [manual]")
	}
	if t.Dir != "" {
		fmt.Fprintf(&b, " cwd=%s", t.Dir)
	}
	if len(t.DependsOn) > 0 {
		fmt.Fprintf(&b, " deps=[%s]", strings.Join(t.DependsOn, ","))
	}
	return b.String()
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "", "Output format: json or yaml")

	rootCmd.AddCommand(listCmd, statusCmd, healthCmd, inspectCmd)
}
