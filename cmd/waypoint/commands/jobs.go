package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/waypoint/am"
	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/logger"
	"github.com/teranos/waypoint/pulse"
	"github.com/teranos/waypoint/pulse/async"
)

// JobsCmd groups job catalog commands
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List job types or run one job in the foreground",
	Long: `List the registered job types or run a single job synchronously.

Running a job here bypasses the scheduler: no admission rule applies, so
avoid running a job while serve runs the same type for the same user.

Examples:
  waypoint jobs types
  waypoint jobs run FillSpeed --user 3f2a...
  waypoint jobs run FilterLargeAccuracy --user 3f2a... --param max_accuracy=50
  waypoint jobs run Import --user 3f2a... --param import_id=0b6e4f6a-2c1d-4a8e-9f3b-5d7c1e2a9b40 --param source=overland.json`,
}

var jobsTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List job types and their parameters",
	RunE:  runJobsTypes,
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <type>",
	Short: "Run one job in the foreground with a progress bar",
	Long:  "Validate parameters through the job catalog, run the job on this process and report its final state. Ctrl+C asks the job to stop at its next checkpoint.",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRun,
}

var (
	jobsJSON   bool
	jobsDBPath string
	jobsUser   string
	jobsParams []string
)

func init() {
	jobsTypesCmd.Flags().BoolVar(&jobsJSON, "json", false, "Output as JSON")
	jobsRunCmd.Flags().StringVar(&jobsUser, "user", "", "Owner of the job")
	jobsRunCmd.Flags().StringArrayVarP(&jobsParams, "param", "p", nil, "Job parameter as key=value (repeatable)")
	jobsRunCmd.Flags().StringVar(&jobsDBPath, "db-path", "", "Custom database path (overrides config)")

	JobsCmd.AddCommand(jobsTypesCmd)
	JobsCmd.AddCommand(jobsRunCmd)
}

func runJobsTypes(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	rt, err := newRuntime(cfg, jobsDBPath, logger.Logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	types := rt.catalog.Describe()
	out := cmd.OutOrStdout()
	if jobsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(types)
	}

	data := pterm.TableData{{"Type", "Category", "Parameters", "Description"}}
	for _, t := range types {
		data = append(data, []string{t.Name, t.Category, formatParams(t.Params), t.Description})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render()
}

// formatParams renders "name:type" pairs, optional ones in brackets
func formatParams(params []async.ParamSpec) string {
	if len(params) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(params))
	for _, p := range params {
		part := fmt.Sprintf("%s:%s", p.Name, p.Type)
		if p.Optional {
			part = "[" + part + "]"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " ")
}

// parseParams turns key=value flags into raw catalog input. Values stay
// strings; the catalog converts them to the declared types.
func parseParams(pairs []string) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.NewInvalidRequestError("parameter %q must be key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

func runJobsRun(cmd *cobra.Command, args []string) error {
	typeName := args[0]
	params, err := parseParams(jobsParams)
	if err != nil {
		return err
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	rt, err := newRuntime(cfg, jobsDBPath, logger.Logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	job, err := rt.catalog.Build(typeName, params, jobsUser)
	if err != nil {
		var paramErr *async.ParamError
		if errors.As(err, &paramErr) && paramErr.Kind == async.ParamErrUnknownType {
			return errors.WithHintf(err, "known types: %s", strings.Join(rt.catalog.Names(), ", "))
		}
		return err
	}
	job.SetEmitter(pulse.NewCLIEmitter(typeName))

	state := runForeground(job)
	return reportJob(job, state)
}

// runForeground executes job on this goroutine. The first Ctrl+C requests a
// cooperative stop; the second cancels the job context.
func runForeground(job *async.Job) async.JobState {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			pterm.Warning.Println("Stopping at the next checkpoint (Ctrl+C again to abort)...")
			job.RequestStop()
		case <-job.Done():
			return
		}
		select {
		case <-sigChan:
			cancel()
		case <-job.Done():
		}
	}()

	return async.Execute(ctx, job, logger.Logger, nil)
}

func reportJob(job *async.Job, state async.JobState) error {
	elapsed := job.FinishedAt().Sub(job.StartedAt()).Round(time.Millisecond)
	switch state {
	case async.JobStateDone:
		if job.StopRequested() && job.Progress() < 1 {
			pterm.Warning.Printfln("%s stopped at %.0f%% after %s", job.Type(), job.Progress()*100, elapsed)
			return nil
		}
		pterm.Success.Printfln("%s done in %s", job.Type(), elapsed)
		return nil
	default:
		pterm.Error.Printfln("%s %s after %s (%s)", job.Type(), state, elapsed, async.ClassifyError(job.Err()))
		return job.Err()
	}
}
