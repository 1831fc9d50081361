// Package cli implements batchrepo, a command line tool for inspecting and operating on the
// job repository: schema management, listing jobs and executions, and the operator commands
// stop, abandon and restart.
//
// Command structure:
//
//	batchrepo
//	├── schema migrate|drop|version    # metadata tables (sql repository only)
//	├── jobs                           # job names with their instance counts
//	├── instances <job>                # instances of a job, newest first
//	├── execution <id>                 # one execution with its steps
//	├── running <job>                  # executions still in progress
//	├── start <job> [key(type)=value]  # create an execution
//	├── stop <job>
//	├── abandon <job>
//	└── restart <job>
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	"github.com/tigerroll/batchstate/pkg/batch/infrastructure/migration"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configFile string
	envFile    string
	logLevel   string
}

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "batchrepo",
		Short:         "Inspect and operate on a batch job repository",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetOutput(cmd.ErrOrStderr())
			if opts.logLevel != "" {
				logger.SetLogLevel(opts.logLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", ".env file loaded before the config is expanded")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "overrides batch.system.logging.level")

	rootCmd.AddCommand(buildSchemaCommand(opts))
	rootCmd.AddCommand(buildJobsCommand(opts))
	rootCmd.AddCommand(buildInstancesCommand(opts))
	rootCmd.AddCommand(buildExecutionCommand(opts))
	rootCmd.AddCommand(buildRunningCommand(opts))
	rootCmd.AddCommand(buildStartCommand(opts))
	rootCmd.AddCommand(buildStopCommand(opts))
	rootCmd.AddCommand(buildAbandonCommand(opts))
	rootCmd.AddCommand(buildRestartCommand(opts))

	return rootCmd
}

func buildSchemaCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the job repository tables",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the job repository tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withMigrator(cmd.Context(), func(ctx context.Context, m *migration.Migrator) error {
				if err := m.Up(ctx); err != nil {
					return err
				}
				return printVersion(cmd.OutOrStdout(), m)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "drop",
		Short: "Drop the job repository tables and everything they hold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withMigrator(cmd.Context(), func(ctx context.Context, m *migration.Migrator) error {
				if err := m.Down(ctx); err != nil {
					return err
				}
				return printVersion(cmd.OutOrStdout(), m)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withMigrator(cmd.Context(), func(ctx context.Context, m *migration.Migrator) error {
				return printVersion(cmd.OutOrStdout(), m)
			})
		},
	})

	return cmd
}

func printVersion(w io.Writer, m *migration.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	_, err = fmt.Fprintf(w, "schema version %d%s\n", version, suffix)
	return err
}

func buildJobsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List job names with their instance counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Context(), func(ctx context.Context, svc services) error {
				names, err := svc.Explorer.GetJobNames(ctx)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout(), "JOB", "INSTANCES")
				for _, name := range names {
					count, err := svc.Explorer.GetJobInstanceCount(ctx, name)
					if err != nil {
						return err
					}
					row(tw, name, strconv.Itoa(count))
				}
				return tw.Flush()
			})
		},
	}
}

func buildInstancesCommand(opts *rootOptions) *cobra.Command {
	var start, count int

	cmd := &cobra.Command{
		Use:   "instances <job>",
		Short: "List the instances of a job, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Context(), func(ctx context.Context, svc services) error {
				instances, err := svc.Explorer.GetJobInstances(ctx, args[0], start, count)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout(), "INSTANCE", "EXECUTIONS", "LAST STATUS", "LAST EXECUTION")
				for _, instance := range instances {
					executions, err := svc.Explorer.GetJobExecutions(ctx, instance)
					if err != nil {
						return err
					}
					status, last := "-", "-"
					if len(executions) > 0 {
						status = executions[0].Status().String()
						last = strconv.FormatInt(executions[0].ID(), 10)
					}
					row(tw, strconv.FormatInt(instance.InstanceID(), 10), strconv.Itoa(len(executions)), status, last)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&start, "start", 0, "number of newest instances to skip")
	cmd.Flags().IntVar(&count, "count", 20, "maximum number of instances to list")

	return cmd
}

func buildExecutionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "execution <id>",
		Short: "Show a job execution and its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid execution id %q: %w", args[0], err)
			}
			return opts.withServices(cmd.Context(), func(ctx context.Context, svc services) error {
				execution, err := svc.Explorer.GetJobExecution(ctx, id)
				if err != nil {
					return err
				}
				return printExecution(cmd.OutOrStdout(), execution, svc.Security.MaskedParameterKeys)
			})
		},
	}
}

func buildRunningCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "running <job>",
		Short: "List the executions of a job that have not ended",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Context(), func(ctx context.Context, svc services) error {
				executions, err := svc.Explorer.FindRunningJobExecutions(ctx, args[0])
				if err != nil {
					return err
				}
				printExecutions(cmd.OutOrStdout(), executions)
				return nil
			})
		},
	}
}

func buildStartCommand(opts *rootOptions) *cobra.Command {
	var next bool

	cmd := &cobra.Command{
		Use:   "start <job> [key(type)=value ...]",
		Short: "Create an execution of a job",
		Long: `Create an execution of a job and print it.

Parameters are given as key(type)=value, where type is string, long, double or date
(default string). A leading "-" marks a parameter as non-identifying. With --next the
run.id parameter of the last instance is incremented instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := model.NewDefaultJobParametersConverter().GetJobParameters(args[1:])
			if err != nil {
				return err
			}
			return opts.withServices(cmd.Context(), func(ctx context.Context, svc services) error {
				var execution *model.JobExecution
				if next {
					execution, err = svc.Operator.StartNextInstance(ctx, args[0], svc.Incrementer)
				} else {
					execution, err = svc.Operator.Start(ctx, args[0], params)
				}
				if err != nil {
					return err
				}
				return printExecution(cmd.OutOrStdout(), execution, svc.Security.MaskedParameterKeys)
			})
		},
	}

	cmd.Flags().BoolVar(&next, "next", false, "start the next instance using the run id incrementer")

	return cmd
}

func buildStopCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <job>",
		Short: "Mark the running executions of a job as stopping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Context(), func(ctx context.Context, svc services) error {
				executions, err := svc.Operator.Stop(ctx, args[0])
				if err != nil {
					return err
				}
				printExecutions(cmd.OutOrStdout(), executions)
				return nil
			})
		},
	}
}

func buildAbandonCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "abandon <job>",
		Short: "Abandon the last stopped or failed execution of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Context(), func(ctx context.Context, svc services) error {
				execution, err := svc.Operator.Abandon(ctx, args[0])
				if err != nil {
					return err
				}
				printExecutions(cmd.OutOrStdout(), []*model.JobExecution{execution})
				return nil
			})
		},
	}
}

func buildRestartCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <job>",
		Short: "Create a new execution of the last stopped or failed instance of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Context(), func(ctx context.Context, svc services) error {
				execution, err := svc.Operator.Restart(ctx, args[0])
				if err != nil {
					return err
				}
				return printExecution(cmd.OutOrStdout(), execution, svc.Security.MaskedParameterKeys)
			})
		},
	}
}

func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row(tw, headers...)
	return tw
}

func row(tw *tabwriter.Writer, cells ...string) {
	fmt.Fprintln(tw, strings.Join(cells, "\t"))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func printExecutions(w io.Writer, executions []*model.JobExecution) {
	tw := newTable(w, "EXECUTION", "INSTANCE", "STATUS", "EXIT CODE", "START", "END")
	for _, execution := range executions {
		row(tw,
			strconv.FormatInt(execution.ID(), 10),
			strconv.FormatInt(execution.JobID(), 10),
			execution.Status().String(),
			execution.ExitStatus().ExitCode(),
			formatTime(execution.StartTime()),
			formatTime(execution.EndTime()),
		)
	}
	_ = tw.Flush()
}

func printExecution(w io.Writer, execution *model.JobExecution, maskedKeys []string) error {
	jobName := ""
	if execution.JobInstance() != nil {
		jobName = execution.JobInstance().JobName()
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row(tw, "Execution:", strconv.FormatInt(execution.ID(), 10))
	row(tw, "Job:", fmt.Sprintf("%s (instance %d)", jobName, execution.JobID()))
	row(tw, "Parameters:", execution.JobParameters().MaskedString(maskedKeys))
	row(tw, "Status:", execution.Status().String())
	row(tw, "Exit status:", execution.ExitStatus().String())
	row(tw, "Version:", strconv.Itoa(execution.Version()))
	row(tw, "Created:", formatTime(execution.CreateTime()))
	row(tw, "Started:", formatTime(execution.StartTime()))
	row(tw, "Ended:", formatTime(execution.EndTime()))
	if err := tw.Flush(); err != nil {
		return err
	}

	steps := execution.StepExecutions()
	if len(steps) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = newTable(w, "STEP", "NAME", "STATUS", "READ", "WRITE", "FILTER", "SKIP", "COMMIT", "ROLLBACK", "EXIT CODE")
	for _, step := range steps {
		row(tw,
			strconv.FormatInt(step.ID(), 10),
			step.StepName(),
			step.Status().String(),
			strconv.Itoa(step.ReadCount()),
			strconv.Itoa(step.WriteCount()),
			strconv.Itoa(step.FilterCount()),
			strconv.Itoa(step.SkipCount()),
			strconv.Itoa(step.CommitCount()),
			strconv.Itoa(step.RollbackCount()),
			step.ExitStatus().ExitCode(),
		)
	}
	return tw.Flush()
}
