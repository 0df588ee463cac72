package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/san-kum/nssim/internal/analysis"
	"github.com/san-kum/nssim/internal/automation"
	"github.com/san-kum/nssim/internal/config"
	"github.com/san-kum/nssim/internal/experiment"
	"github.com/san-kum/nssim/internal/export"
	"github.com/san-kum/nssim/internal/logging"
	"github.com/san-kum/nssim/internal/metrics"
	"github.com/san-kum/nssim/internal/optim"
	"github.com/san-kum/nssim/internal/storage"
	"github.com/san-kum/nssim/internal/viz"
	"github.com/spf13/cobra"
)

var (
	dataDir     string
	configFile  string
	preset      string
	integrator  string
	newtonMode  string
	theta       float64
	dt          float64
	duration    float64
	workers     int
	params      []string
	logLevel    string
	logFormat   string
	metricsFile string

	columns       []string
	stepsPerFrame int
	sweepParam    string
	sweepValues   []float64
	gapTolerance  float64
	svgFile       string
	grid          []string
	minimize      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "nssim",
		Short:        "nonsmooth dynamical systems simulator",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".nssim", "data directory")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run simulation and store the trajectory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addSimulationFlags(runCmd)
	runCmd.Flags().StringVar(&metricsFile, "metrics-out", "", "write prometheus counters to this textfile")

	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "run simulation with live visualization",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addSimulationFlags(liveCmd)
	liveCmd.Flags().IntVar(&stepsPerFrame, "speed", 2, "steps per frame")

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "run one simulation per value of a model parameter",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addSimulationFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "sweep", "restitution", "parameter to vary")
	sweepCmd.Flags().Float64SliceVar(&sweepValues, "values", []float64{0, 0.5, 0.9}, "parameter values")

	tuneCmd := &cobra.Command{
		Use:   "tune [model]",
		Short: "grid search model parameters minimizing a metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTune,
	}
	addSimulationFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&grid, "grid", nil, "parameter values, e.g. restitution=0,0.5,0.9")
	tuneCmd.Flags().StringVar(&minimize, "minimize", "penetration", "metric to minimize")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a yaml scenario of simulations",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot stored trajectory",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&columns, "column", nil, "columns to plot (default: positions)")
	plotCmd.Flags().StringVar(&svgFile, "svg", "", "also write the plot to this svg file")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "frequency and impact analysis of a stored coordinate",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().StringSliceVar(&columns, "column", nil, "coordinate to analyze (default: first position)")
	analyzeCmd.Flags().Float64Var(&gapTolerance, "gap-tol", 1e-6, "contact tolerance on the coordinate")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run trajectory to CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return storage.New(dataDir).ExportCSV(args[0], os.Stdout)
		},
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata and trajectory to JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return storage.New(dataDir).ExportJSON(args[0], os.Stdout)
		},
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models, integrators and solvers",
		Run: func(cmd *cobra.Command, args []string) {
			reg := experiment.NewRegistry()
			fmt.Printf("models:      %s\n", strings.Join(reg.ListModels(), ", "))
			fmt.Printf("integrators: %s\n", strings.Join(reg.ListIntegrators(), ", "))
			fmt.Printf("solvers:     %s\n", strings.Join(reg.ListSolvers(), ", "))
		},
	}

	rootCmd.AddCommand(runCmd, liveCmd, sweepCmd, tuneCmd, scenarioCmd, listCmd, plotCmd, analyzeCmd, exportCSVCmd, exportJSONCmd, presetsCmd, modelsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSimulationFlags(cmd *cobra.Command) {
	def := config.DefaultConfig()
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&integrator, "integrator", "", "one-step integrator (default: the model's)")
	cmd.Flags().StringVar(&newtonMode, "newton", def.Newton.Mode, "newton mode: linear, linear_implicit, nonlinear")
	cmd.Flags().Float64Var(&theta, "theta", def.Theta, "theta of the scheme")
	cmd.Flags().Float64Var(&dt, "dt", def.Dt, "timestep")
	cmd.Flags().Float64Var(&duration, "time", def.Duration, "duration")
	cmd.Flags().IntVar(&workers, "workers", 0, "per-system workers (0: GOMAXPROCS)")
	cmd.Flags().StringSliceVarP(&params, "param", "p", nil, "model parameter key=value")
	cmd.Flags().StringVar(&logLevel, "log-level", def.Log.Level, "log level")
	cmd.Flags().StringVar(&logFormat, "log-format", def.Log.Format, "log format: console, json")
}

// resolveConfig layers defaults, preset, config file and the flags that
// were set explicitly, in that order.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if len(args) > 0 {
		cfg.Model = args[0]
	}
	if preset != "" {
		p := config.GetPreset(cfg.Model, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(cfg.Model))
		}
		if configFile == "" {
			cfg = p
		} else {
			cfg.Integrator, cfg.Dt, cfg.Duration, cfg.Params = p.Integrator, p.Dt, p.Duration, p.Params
		}
	}

	flags := cmd.Flags()
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("newton") {
		cfg.Newton.Mode = newtonMode
	}
	if flags.Changed("theta") {
		cfg.Theta = theta
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if len(params) > 0 && cfg.Params == nil {
		cfg.Params = make(map[string]float64, len(params))
	}
	for _, kv := range params {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("param %q: want key=value", kv)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", kv, err)
		}
		cfg.Params[key] = v
	}
	return cfg, cfg.Validate()
}

func experimentConfig(cfg *config.Config) (experiment.Config, error) {
	opts, err := cfg.Options()
	if err != nil {
		return experiment.Config{}, err
	}
	return experiment.Config{
		Model:               cfg.Model,
		Integrator:          cfg.Integrator,
		Theta:               cfg.Theta,
		Solver:              cfg.Solver.Name,
		SolverMaxIterations: cfg.Solver.MaxIterations,
		Dt:                  cfg.Dt,
		Duration:            cfg.Duration,
		Params:              cfg.Params,
		Options:             opts,
	}, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	expCfg, err := experimentConfig(cfg)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	exp := experiment.New(expCfg)
	if err := exp.Setup(experiment.NewRegistry(), log); err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	exp.Simulation().SetRecorder(metrics.NewRecorder(reg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running %s simulation...\n", cfg.Model)
	result, runErr := exp.Run(ctx)
	if result == nil {
		return runErr
	}

	runID, err := st.Save(expCfg, result, runErr)
	if err != nil {
		return err
	}
	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
			return err
		}
	}

	fmt.Printf("completed in %v\n", result.Duration)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("integrator: %s\n", result.Integrator)
	fmt.Printf("steps: %d (newton iterations %d, non-converged %d, solver failures %d)\n",
		result.Stats.Steps, result.Stats.CumulativeNewtonIterations,
		result.Stats.NonConvergedSteps, result.Stats.SolverFailures)
	fmt.Println("\nmetrics:")
	printMetrics(os.Stdout, result.Metrics)
	return runErr
}

func printMetrics(w io.Writer, m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %.6f\n", name, m[name])
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	expCfg, err := experimentConfig(cfg)
	if err != nil {
		return err
	}
	reg := experiment.NewRegistry()
	build := func() (*experiment.Experiment, error) {
		exp := experiment.New(expCfg)
		if err := exp.Setup(reg, logging.NewNop()); err != nil {
			return nil, err
		}
		return exp, nil
	}

	m, err := viz.NewModel(build, stepsPerFrame)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	expCfg, err := experimentConfig(cfg)
	if err != nil {
		return err
	}

	if len(sweepValues) == 0 {
		return fmt.Errorf("--values is empty")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := experiment.Sweep(ctx, experiment.NewRegistry(), expCfg, sweepParam, sweepValues, cfg.Workers)
	if err != nil {
		return err
	}

	var names []string
	for name := range results[0].Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tSTEPS\tNEWTON", strings.ToUpper(sweepParam))
	for _, name := range names {
		fmt.Fprintf(w, "\t%s", strings.ToUpper(name))
	}
	fmt.Fprintln(w)
	for i, res := range results {
		fmt.Fprintf(w, "%g\t%d\t%d", sweepValues[i], res.Stats.Steps, res.Stats.CumulativeNewtonIterations)
		for _, name := range names {
			fmt.Fprintf(w, "\t%.6f", res.Metrics[name])
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	expCfg, err := experimentConfig(cfg)
	if err != nil {
		return err
	}
	if len(grid) == 0 {
		return fmt.Errorf("at least one --grid is required")
	}

	names := make([]string, 0, len(grid))
	ranges := make([][]float64, 0, len(grid))
	for _, entry := range grid {
		name, list, ok := strings.Cut(entry, "=")
		if !ok {
			return fmt.Errorf("grid %q: want name=v1,v2,...", entry)
		}
		var values []float64
		for _, field := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return fmt.Errorf("grid %q: %w", entry, err)
			}
			values = append(values, v)
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}

	search, err := optim.NewGridSearch(names, ranges, cfg.Workers)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("searching %d points...\n", len(search.Points()))
	best, err := search.Search(ctx, experiment.NewRegistry(), expCfg, minimize)
	if err != nil {
		return err
	}
	fmt.Printf("best %s: %.6f\n", minimize, best.Value)
	for _, name := range names {
		fmt.Printf("  %s = %g\n", name, best.Params[name])
	}
	if best.Failed > 0 {
		fmt.Printf("failed points: %d\n", best.Failed)
	}
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	log, err := logging.New("info", "console", os.Stderr)
	if err != nil {
		return err
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := &automation.Runner{Registry: experiment.NewRegistry(), Store: st, Log: log}
	results, runErr := r.Run(ctx, sc)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tMODEL\tINTEG\tSTEPS\tRUN")
	for i, res := range results {
		name := res.Step.Name
		if name == "" {
			name = strconv.Itoa(i + 1)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", name, res.Result.Model, res.Result.Integrator, res.Result.Stats.Steps, res.RunID)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return runErr
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tDURATION\tDT\tINTEG\tNEWTON\tSTATUS")

	for _, run := range runs {
		status := "ok"
		if run.Error != "" {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%s\t%s\t%s\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Integrator,
			run.NewtonMode,
			status,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	cols, times, states, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d\n\n", len(states))

	selected := columns
	if len(selected) == 0 {
		for _, c := range cols {
			if strings.Contains(c, ".q") || strings.Contains(c, ".x") {
				selected = append(selected, c)
			}
		}
		if len(selected) > 6 {
			selected = selected[:6]
		}
	}

	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c] = i
	}
	var series []export.Series
	for _, name := range selected {
		j, ok := index[name]
		if !ok {
			return fmt.Errorf("unknown column %q (available: %v)", name, cols)
		}
		data := make([]float64, len(states))
		for i := range states {
			data[i] = states[i][j]
		}
		fmt.Println(asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(name),
		))
		fmt.Println()
		series = append(series, export.Series{Name: name, Values: data})
	}

	if svgFile == "" {
		return nil
	}
	f, err := os.Create(svgFile)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := export.WriteSVG(f, times, series, 960, 480); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", svgFile)
	return f.Close()
}

func listPresets(cmd *cobra.Command, args []string) error {
	models := experiment.NewRegistry().ListModels()
	if len(args) > 0 {
		models = args[:1]
	}
	for _, model := range models {
		presets := config.ListPresets(model)
		if len(presets) == 0 {
			fmt.Printf("no presets for model: %s\n", model)
			continue
		}
		fmt.Printf("presets for %s:\n", model)
		for _, name := range presets {
			p := config.GetPreset(model, name)
			fmt.Printf("  %-14s dt=%g time=%g params=%v\n", name, p.Dt, p.Duration, p.Params)
		}
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	cols, times, states, err := st.LoadStates(args[0])
	if err != nil {
		return err
	}
	if len(states) < 2 {
		return fmt.Errorf("not enough samples to analyze")
	}

	name := ""
	if len(columns) > 0 {
		name = columns[0]
	} else {
		for _, c := range cols {
			if strings.Contains(c, ".q") || strings.Contains(c, ".x") {
				name = c
				break
			}
		}
	}
	j := -1
	for i, c := range cols {
		if c == name {
			j = i
		}
	}
	if j < 0 {
		return fmt.Errorf("unknown column %q (available: %v)", name, cols)
	}

	data := make([]float64, len(states))
	for i := range states {
		data[i] = states[i][j]
	}
	sampleDt := times[1] - times[0]
	freqs, amps, err := analysis.Spectrum(data, sampleDt)
	if err != nil {
		return err
	}
	dominant, err := analysis.DominantFrequency(data, sampleDt)
	if err != nil {
		return err
	}

	impacts := analysis.Impacts(times, data, gapTolerance)
	fmt.Printf("column: %s\n", name)
	fmt.Printf("dominant frequency: %.4f Hz\n", dominant)
	fmt.Printf("impacts: %d\n", len(impacts))
	if iv := analysis.Intervals(impacts); len(iv) > 0 {
		fmt.Printf("last impact interval: %.4f s\n", iv[len(iv)-1])
	}
	for _, p := range analysis.ImpactMap(impacts) {
		fmt.Printf("  %.4f -> %.4f\n", p[0], p[1])
	}

	limit := len(amps)
	if limit > 160 {
		limit = 160
	}
	fmt.Println()
	fmt.Println(asciigraph.Plot(amps[1:limit],
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("amplitude spectrum, 0 to %.2f Hz", freqs[limit-1])),
	))
	return nil
}
