package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zen-systems/mindgate/pkg/evidence"
	"github.com/zen-systems/mindgate/pkg/loop"
	"github.com/zen-systems/mindgate/pkg/memory"
	"github.com/zen-systems/mindgate/pkg/registry"
	"github.com/zen-systems/mindgate/pkg/router"
	"github.com/zen-systems/mindgate/pkg/task"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mindgate",
		Short: "Confidence-gated agent loop with model routing and semantic memory",
		Long: `Mindgate classifies each prompt, picks the best model for it, routes the
	call through a provider fallback chain, and reflects on the answer. Answers
	above the confidence threshold are remembered; anything below it is
	escalated for human review.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default ~/.mindgate/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(recallCmd())
	rootCmd.AddCommand(rememberCmd())
	rootCmd.AddCommand(validateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var userContext, hint, batchFile, traceDir, metricsAddr string
	var steps, parallelism int

	cmd := &cobra.Command{
		Use:   "run [prompt...]",
		Short: "Run the reflection loop over one or more prompts",
		Long: `Each prompt is one loop step. The loop stops early when confidence drops
	below the threshold, and the final state is printed as JSON.

	Use --batch to run independent tasks from a YAML file concurrently:

	  - user_context: alice
	    prompts: ["write a sort function in go"]`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && batchFile == "" {
				return fmt.Errorf("provide at least one prompt or --batch")
			}
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			l, err := a.newLoop(ctx)
			if err != nil {
				return err
			}
			if steps <= 0 {
				steps = a.cfg.Loop.MaxSteps
			}
			if traceDir == "" {
				traceDir = a.cfg.TraceDir
			}
			if metricsAddr == "" {
				metricsAddr = a.cfg.MetricsAddr
			}
			metricsCtx, stopMetrics := context.WithCancel(ctx)
			defer stopMetrics()
			a.serveMetrics(metricsCtx, metricsAddr)
			started := time.Now()

			if batchFile != "" {
				tasks, err := readTasks(batchFile)
				if err != nil {
					return err
				}
				if parallelism <= 0 {
					parallelism = a.cfg.Loop.Parallelism
				}
				states, err := l.RunAll(ctx, tasks, steps, parallelism)
				if err != nil {
					return err
				}
				for i, st := range states {
					a.trace(traceDir, tasks[i], st, started)
				}
				return printJSON(cmd.OutOrStdout(), states)
			}

			t := loop.Task{Prompts: args, UserContext: userContext, Hint: hint}
			st, err := l.Run(ctx, t, steps)
			if err != nil {
				return err
			}
			a.trace(traceDir, t, st, started)
			return printJSON(cmd.OutOrStdout(), st)
		},
	}

	cmd.Flags().StringVar(&userContext, "user-context", "default", "memory scope for this run")
	cmd.Flags().StringVar(&hint, "hint", task.HintAuto, "task type hint, or auto")
	cmd.Flags().IntVar(&steps, "steps", 0, "maximum loop steps (default loop.max_steps)")
	cmd.Flags().StringVar(&batchFile, "batch", "", "YAML file of tasks to run concurrently")
	cmd.Flags().IntVar(&parallelism, "parallel", 0, "concurrent tasks for --batch (default loop.parallelism)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running (default metrics_addr)")
	cmd.Flags().StringVar(&traceDir, "trace-dir", "", "write a run trace under this directory (default trace_dir)")

	return cmd
}

// trace writes the run evidence when a trace directory is set. Failures are
// logged; the run result is still printed.
func (a *app) trace(dir string, t loop.Task, st *loop.State, started time.Time) {
	if dir == "" || st == nil {
		return
	}
	w, err := evidence.NewWriter(dir, uuid.NewString())
	if err == nil {
		err = w.WriteState(t, st, started)
	}
	if err != nil {
		a.logger.Warn().Err(err).Str("trace_dir", dir).Msg("failed to write run trace")
		return
	}
	a.logger.Info().Str("run_dir", w.RunDir()).Msg("run trace written")
}

func readTasks(path string) ([]loop.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	var tasks []loop.Task
	if err := yaml.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	for i := range tasks {
		if tasks[i].UserContext == "" {
			tasks[i].UserContext = "default"
		}
	}
	return tasks, nil
}

func classifyCmd() *cobra.Command {
	var hint, provider string

	cmd := &cobra.Command{
		Use:   "classify [prompt]",
		Short: "Show the task type, complexity and selected model for a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			analysis := router.Classify(args[0], hint)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Type:\t%s\n", analysis.Type)
			fmt.Fprintf(w, "Confidence:\t%.2f\n", analysis.Confidence)
			fmt.Fprintf(w, "Complexity:\t%.2f\n", analysis.Complexity)
			for _, r := range analysis.Reasons {
				fmt.Fprintf(w, "Reason:\t%s\n", r)
			}
			var m registry.ModelDescriptor
			var score float64
			if provider != "" {
				m, score, err = a.registry.SelectFromProvider(analysis, registry.Provider(provider))
			} else {
				m, score, err = a.registry.Select(analysis)
			}
			if err != nil {
				fmt.Fprintf(w, "Model:\t(none: %v)\n", err)
				return w.Flush()
			}
			fmt.Fprintf(w, "Model:\t%s/%s (%.3f)\n", m.Provider, m.Name, score)
			fmt.Fprintf(w, "Fallback:\t%s\n", formatProviders(a.router.Chain(m)))
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&hint, "hint", task.HintAuto, "task type hint, or auto")
	cmd.Flags().StringVar(&provider, "provider", "", "restrict selection to one provider")
	return cmd
}

func modelsCmd() *cobra.Command {
	var typeFlag string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List registered models and their readiness",
		Long: `Lists every registered model in declaration order.

	Use --type to rank models for a task type instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if typeFlag != "" {
				t, ok := task.Parse(typeFlag)
				if !ok {
					return fmt.Errorf("unknown task type %q", typeFlag)
				}
				fmt.Fprintln(w, "MODEL\tPROVIDER\tSCORE\tSTATUS")
				for _, r := range registry.Rank(task.Analysis{Type: t}, a.registry.Models()) {
					fmt.Fprintf(w, "%s\t%s\t%.3f\t%s\n", r.Model.Name, r.Model.Provider, r.Score, a.status(r.Model.Provider))
				}
				return w.Flush()
			}

			fmt.Fprintln(w, "MODEL\tPROVIDER\tREASONING\tCREATIVITY\tCODE\tMULTIMODAL\tLATENCY\tSTATUS")
			for _, m := range a.registry.Models() {
				fmt.Fprintf(w, "%s\t%s", m.Name, m.Provider)
				for _, c := range registry.Capabilities {
					fmt.Fprintf(w, "\t%.2f", m.Score(c))
				}
				fmt.Fprintf(w, "\t%s\n", a.status(m.Provider))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&typeFlag, "type", "", "rank models for a task type")
	return cmd
}

func (a *app) status(p registry.Provider) string {
	if _, ok := a.adapters.Get(p); ok {
		return "ready"
	}
	return "no key"
}

func recallCmd() *cobra.Command {
	var userContext string
	var types []string
	var limit int
	var minImportance float64

	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Search memory for records similar to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.openMemory(cmd.Context())
			if err != nil {
				return err
			}
			q := memory.Query{
				Text:          args[0],
				UserContext:   userContext,
				Limit:         limit,
				MinImportance: minImportance,
			}
			for _, t := range types {
				q.Types = append(q.Types, memory.Type(t))
			}
			results, err := store.Search(cmd.Context(), q)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SIMILARITY\tTYPE\tIMPORTANCE\tCREATED\tCONTENT")
			for _, r := range results {
				fmt.Fprintf(w, "%.3f\t%s\t%.2f\t%s\t%s\n",
					r.Similarity, r.Type, r.Importance, r.CreatedAt.Format("2006-01-02 15:04"), oneLine(r.Content, 80))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&userContext, "user-context", "default", "memory scope to search")
	cmd.Flags().StringSliceVar(&types, "type", nil, "restrict to memory types")
	cmd.Flags().IntVar(&limit, "limit", memory.DefaultRecallLimit, "maximum results")
	cmd.Flags().Float64Var(&minImportance, "min-importance", 0, "minimum importance")
	return cmd
}

func rememberCmd() *cobra.Command {
	var userContext, typeFlag string
	var importance float64
	var tags []string

	cmd := &cobra.Command{
		Use:   "remember [content]",
		Short: "Store a record in memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.openMemory(cmd.Context())
			if err != nil {
				return err
			}
			id, err := store.Memorize(cmd.Context(), memory.Entry{
				Content:     args[0],
				Type:        memory.Type(typeFlag),
				Importance:  importance,
				Tags:        tags,
				UserContext: userContext,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&userContext, "user-context", "default", "memory scope")
	cmd.Flags().StringVar(&typeFlag, "type", string(memory.TypeKnowledge), "memory type")
	cmd.Flags().Float64Var(&importance, "importance", 0.5, "importance in [0,1]")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tags")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and model registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Registry: %d models, %d aliases\n", a.registry.Len(), len(a.registry.Aliases()))
			fmt.Fprintf(out, "Fallback: %s\n", formatProviders(a.router.Hierarchy()))

			var missing []string
			for _, p := range a.router.Hierarchy() {
				if len(a.registry.ByProvider(p)) == 0 {
					missing = append(missing, string(p))
				}
			}
			if len(missing) > 0 {
				fmt.Fprintf(out, "Warning: no registered models for %s\n", strings.Join(missing, ", "))
			}
			if len(a.adapters) == 0 {
				fmt.Fprintln(out, "Warning: no provider credentials found")
			}
			fmt.Fprintln(out, "Configuration is valid.")
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatProviders(ps []registry.Provider) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, " → ")
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
