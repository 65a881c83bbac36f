package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/phuslu/log"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/cbrunnkvist/jittertest/internal/clock"
	"github.com/cbrunnkvist/jittertest/internal/metrics"
	"github.com/cbrunnkvist/jittertest/internal/msr"
	"github.com/cbrunnkvist/jittertest/internal/report"
	"github.com/cbrunnkvist/jittertest/internal/sampler"
	"github.com/cbrunnkvist/jittertest/internal/sched"
	"github.com/cbrunnkvist/jittertest/internal/spike"
	"github.com/cbrunnkvist/jittertest/internal/workload"
)

var version = "0.1.0"

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// Verbosity levels
const (
	verbosityBrief   = 0
	verbosityDefault = 1
	verbosityFlagged = 2 // -v without a value
)

// Run options selectable with -o.
const (
	optDate     = "date"
	optSMICount = "smi_count"
	optPowerHog = "power_hog"
	optOverhead = "overhead"
)

var runOptions = []string{optDate, optSMICount, optPowerHog, optOverhead}

// Config holds all command-line configuration
type Config struct {
	// Measurement
	Method    string
	Threshold uint64 // 0 = method default
	Loopcount uint64 // 0 = default
	Clock     string
	Capacity  int

	// Output
	Format      report.Format
	Verbosity   int
	MetricsFile string

	// -o options
	Date     bool
	SMICount bool
	PowerHog bool
	Overhead bool

	// Thread setup
	Priority sched.Priority
	CPU      int

	// Misc
	Profile      string
	Help         bool
	Version      bool
	Explain      bool
	ListProfiles bool

	// Command line as given, for the report header
	Command []string
}

// EffectiveThreshold returns the configured threshold or the method default.
func (c *Config) EffectiveThreshold() uint64 {
	if c.Threshold != 0 {
		return c.Threshold
	}
	return sampler.DefaultThreshold(c.Method)
}

// EffectiveLoopcount returns the configured loopcount or the default.
func (c *Config) EffectiveLoopcount() uint64 {
	if c.Loopcount != 0 {
		return c.Loopcount
	}
	return sampler.DefaultLoopcount
}

func main() {
	cfg, err := parseFlags(os.Args, os.Stderr)
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(exitOK)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'jittertest --help' for usage.")
		os.Exit(exitUsage)
	}

	if cfg.Version {
		fmt.Printf("jittertest %s\n", version)
		os.Exit(exitOK)
	}

	if cfg.Explain {
		fmt.Print(explainText)
		os.Exit(exitOK)
	}

	if cfg.ListProfiles {
		printProfiles(os.Stdout)
		os.Exit(exitOK)
	}

	os.Exit(run(cfg, os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*Config, error) {
	cfg := &Config{
		Command:  args,
		Priority: sched.DefaultPriority(),
	}

	fs := flag.NewFlagSet("jittertest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false // Preserve definition order in help

	method := fs.StringP("method", "m", sampler.MethodTime, "Time base: time (usec) or cycles")
	threshold := fs.Uint64P("threshold", "t", 0, "Spike threshold (0 = 10 usec or 10000 cycles)")
	loopcount := fs.Uint64P("loopcount", "l", 0, fmt.Sprintf("Iterations to sample (0 = %d)", uint64(sampler.DefaultLoopcount)))
	format := fs.StringP("format", "f", "freeform", "Output format: freeform, csv, xml, json")
	options := fs.StringSliceP("option", "o", nil, "Run options: date, smi_count, power_hog, overhead")
	priority := fs.StringP("priority", "p", "", "Scheduling [POLICY][,PRIO][,NICE] (default FIFO,max,-20)")
	fs.IntVarP(&cfg.CPU, "cpu", "c", -1, "Pin the measuring thread to this CPU (-1 = no pinning)")
	fs.StringVar(&cfg.Clock, "clock", clock.WallVDSO, "Wall clock source: vdso or syscall")
	fs.IntVar(&cfg.Capacity, "capacity", spike.DefaultCapacity, "Spike buffer slots")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file at exit")
	profile := fs.StringP("profile", "P", "", "Measurement profile (see below)")
	fs.BoolVarP(&cfg.ListProfiles, "list-profiles", "L", false, "List available profiles")
	fs.IntVarP(&cfg.Verbosity, "verbose", "v", verbosityDefault, "Verbosity; -v alone means 2, use -v=N for others")
	fs.Lookup("verbose").NoOptDefVal = fmt.Sprint(verbosityFlagged)
	brief := fs.BoolP("brief", "b", false, "Only print summaries (verbosity 0)")
	fs.BoolVarP(&cfg.Version, "version", "V", false, "Show version")
	fs.BoolVarP(&cfg.Explain, "explain", "e", false, "Explain what the measurement does")
	fs.BoolVarP(&cfg.Help, "help", "h", false, "Show help")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "jittertest - measure OS-induced latency jitter on an idle core")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Samples a clock in a tight loop and reports every gap between two")
		fmt.Fprintln(stderr, "consecutive samples that reaches the threshold.")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Usage: jittertest [flags]")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Examples:")
		fmt.Fprintln(stderr, "  jittertest -t 20 -l 100000000")
		fmt.Fprintln(stderr, "  jittertest -m cycles -o smi_count,overhead -f csv")
		fmt.Fprintln(stderr, "  jittertest --profile smi --cpu 3")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Flags:")
		fs.PrintDefaults()
		fmt.Fprintln(stderr, "")
		fmt.Fprintf(stderr, "Profiles: %s\n", strings.Join(profileNames(), ", "))
	}

	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	if cfg.Help {
		fs.Usage()
		return cfg, flag.ErrHelp
	}

	// Apply profile first (can be overridden by explicit flags)
	cfg.Method = sampler.MethodTime
	if *profile != "" {
		p, ok := profiles[*profile]
		if !ok {
			return nil, fmt.Errorf("unknown profile: %s", *profile)
		}
		cfg.Profile = *profile
		cfg.applyProfile(p)
	}

	if fs.Changed("method") || cfg.Profile == "" {
		m, err := sampler.ParseMethod(*method)
		if err != nil {
			return nil, err
		}
		cfg.Method = m
	}
	if fs.Changed("threshold") && *threshold != 0 {
		cfg.Threshold = *threshold
	}
	if fs.Changed("loopcount") && *loopcount != 0 {
		cfg.Loopcount = *loopcount
	}
	if fs.Changed("format") || cfg.Profile == "" {
		f, err := report.ParseFormat(*format)
		if err != nil {
			return nil, err
		}
		cfg.Format = f
	}
	for _, o := range *options {
		if err := cfg.setOption(o); err != nil {
			return nil, err
		}
	}
	if fs.Changed("priority") {
		p, err := sched.ParsePriority(*priority)
		if err != nil {
			return nil, fmt.Errorf("invalid --priority: %w", err)
		}
		cfg.Priority = p
	}
	if *brief {
		cfg.Verbosity = verbosityBrief
	}

	if cfg.Verbosity < 0 {
		return nil, fmt.Errorf("invalid --verbose: %d", cfg.Verbosity)
	}
	if cfg.Capacity < spike.MinCapacity {
		return nil, fmt.Errorf("invalid --capacity: %w: %d slots (minimum %d)", spike.ErrCapacityTooSmall, cfg.Capacity, spike.MinCapacity)
	}
	if cfg.CPU < -1 || cfg.CPU >= 1<<16 {
		return nil, fmt.Errorf("invalid --cpu: %d", cfg.CPU)
	}

	return cfg, nil
}

// setOption turns on one -o option. Unambiguous prefixes are accepted.
func (c *Config) setOption(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	var match string
	for _, name := range runOptions {
		if s != "" && strings.HasPrefix(name, s) {
			if match != "" {
				return fmt.Errorf("ambiguous option: %q", s)
			}
			match = name
		}
	}
	switch match {
	case optDate:
		c.Date = true
	case optSMICount:
		c.SMICount = true
	case optPowerHog:
		c.PowerHog = true
	case optOverhead:
		c.Overhead = true
	default:
		return fmt.Errorf("unknown option %q; use one of %s", s, strings.Join(runOptions, ", "))
	}
	return nil
}

// newLogger maps verbosity onto log levels: 0 errors and warnings only,
// 1 info, 2 debug, 3 and up trace.
func newLogger(verbosity int, w io.Writer) *log.Logger {
	level := log.InfoLevel
	switch {
	case verbosity <= verbosityBrief:
		level = log.WarnLevel
	case verbosity == 2:
		level = log.DebugLevel
	case verbosity >= 3:
		level = log.TraceLevel
	}
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &log.Logger{
		Level:      level,
		TimeFormat: "15:04:05.000000",
		Writer: &log.ConsoleWriter{
			Writer:      w,
			ColorOutput: color,
		},
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func run(cfg *Config, stdout, stderr io.Writer) int {
	logger := newLogger(cfg.Verbosity, stderr)

	wall, err := clock.NewWall(cfg.Clock)
	if err != nil {
		logger.Error().Err(err).Str("clock", cfg.Clock).Msg("wall clock unavailable")
		return exitFailure
	}
	method, err := sampler.NewMethod(cfg.Method, wall, cfg.PowerHog)
	if err != nil {
		logger.Error().Err(err).Msg("measurement method")
		return exitFailure
	}

	var load workload.Workload
	if cfg.PowerHog {
		if cfg.Method != sampler.MethodCycles {
			logger.Warn().Msg("power_hog only applies to the cycles method; ignored")
		} else {
			if load, err = workload.New(workload.PowerHog); err != nil {
				logger.Error().Err(err).Msg("workload")
				return exitFailure
			}
		}
	}

	threshold := cfg.EffectiveThreshold()
	loopcount := cfg.EffectiveLoopcount()
	unit := sampler.UnitOf(cfg.Method)

	rep := report.New(stdout, cfg.Format, cfg.Verbosity)
	var sink spike.Sink = rep
	var coll *metrics.Collector
	if cfg.MetricsFile != "" {
		coll = metrics.NewCollector(cfg.Method, unit, threshold)
		sink = spike.Tee(rep, coll)
	}

	buf, err := spike.NewBuffer(cfg.Capacity, &spike.Clock{}, sink)
	if err != nil {
		logger.Error().Err(err).Msg("spike buffer")
		return exitUsage
	}
	buf.Touch()

	if isTerminal(stdout) && cfg.Verbosity > verbosityBrief {
		logger.Info().Msg("stdout is a terminal; each buffer drain writes to it inside the measured run")
	}

	smiCPU := smiCPU(cfg.CPU)
	var smi *msr.Reader
	if cfg.SMICount {
		smi = msr.NewReader()
		defer smi.Close()
	}
	readSMI := func(phase string) *uint64 {
		if smi == nil {
			return nil
		}
		n, err := smi.SMICount(smiCPU)
		if err != nil {
			logger.Warn().Err(err).Int("cpu", smiCPU).Msg("SMI count unavailable")
			return nil
		}
		if coll != nil {
			coll.SetSMICount(phase, n)
		}
		return &n
	}

	rep.Begin(report.Header{
		Version:  version,
		Command:  cfg.Command,
		Method:   cfg.Method,
		Unit:     unit,
		Date:     time.Now(),
		ShowDate: cfg.Date,
		SMICount: readSMI("before"),
	})
	if err := rep.Flush(); err != nil {
		logger.Error().Err(err).Msg("writing report")
		return exitFailure
	}

	logger.Debug().
		Str("method", cfg.Method).
		Uint64("threshold", threshold).
		Uint64("loopcount", loopcount).
		Int("verbosity", cfg.Verbosity).
		Str("clock", wall.Name()).
		Str("counter", clock.CounterName()).
		Int("capacity", buf.Cap()).
		Msg("effective parameters")

	res, runErr := measure(cfg, method, buf, load, threshold, loopcount, logger)

	lowest, haveMin := res.MinSpike()
	rep.Summary(report.Summary{
		Method:       cfg.Method,
		MinSpike:     lowest,
		HaveMin:      haveMin,
		Overhead:     res.Overhead.Total(),
		ShowOverhead: cfg.Overhead,
	})
	endErr := rep.End(report.Footer{
		SMICount: readSMI("after"),
		Date:     time.Now(),
		ShowDate: cfg.Date,
	})

	if coll != nil {
		coll.SetResult(res.Iterations, lowest, haveMin, res.Overhead.Total())
		if err := coll.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error().Err(err).Msg("metrics textfile")
			return exitFailure
		}
	}

	if runErr != nil {
		logger.Error().Err(runErr).Msg("measurement failed")
		return exitFailure
	}
	if endErr != nil {
		logger.Error().Err(endErr).Msg("writing report")
		return exitFailure
	}
	return exitOK
}

// measure runs warm-up and measurement on a locked, prepared OS thread.
func measure(cfg *Config, m sampler.Method, buf *spike.Buffer, load workload.Workload, threshold, loopcount uint64, logger *log.Logger) (sampler.Result, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	restore := sched.Prepare(sched.Setup{
		LockMemory: true,
		Priority:   &cfg.Priority,
		CPU:        cfg.CPU,
		QuiesceGC:  true,
	}, logger)
	defer restore()

	s, err := sampler.NewSession(m, buf, logger)
	if err != nil {
		return sampler.Result{}, err
	}
	return s.Run(sampler.Params{
		Loopcount: loopcount,
		Threshold: threshold,
		Workload:  load,
	})
}

// smiCPU picks the CPU whose SMI counter is read: the pinned one, else the
// one we are running on, else 0.
func smiCPU(pinned int) int {
	if pinned >= 0 {
		return pinned
	}
	if cpu, ok := clock.CurrentCPU(); ok {
		return cpu
	}
	return 0
}

const explainText = `jittertest locks its memory, raises its scheduling priority (FIFO at the
highest priority by default, see --priority) and then reads a clock as fast
as it can. Whenever two consecutive reads are at least the threshold apart,
the gap is recorded as a latency spike along with the time since the
previous spike. Spikes are buffered in memory and printed when the buffer
fills and at the end of the run.

The default method reads the wall clock in microseconds. With
--method=cycles the CPU cycle counter is read instead and the threshold is
in cycles; convert from time with the processor frequency. For example, a
6 usec threshold on a 2.7 GHz machine is -t 16200. Use the calibrate tool
to measure the cycles per microsecond of the machine you are on.

Before the real measurement a short warm-up pass runs with a threshold of
zero. It touches the buffer and every code path once; its output is
discarded.

Spikes on an otherwise idle, isolated core are usually System Management
Interrupts. To isolate a core, keep IRQs and other tasks off it (for
example isolcpus= or irqbalance with IRQBALANCE_BANNED_CPUS) and pin the
measurement to it with --cpu. With -o smi_count the SMI counter of that
core is printed before and after the run so spikes can be matched to SMIs.
`
