package main

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	cli "github.com/urfave/cli/v2"
	"gonum.org/v1/gonum/stat"

	"github.com/exascience/pradix/config"
	"github.com/exascience/pradix/device"
	"github.com/exascience/pradix/sort"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to a TOML configuration file; flags override its values",
	}
	keysFlag = &cli.IntFlag{
		Name:  "keys",
		Usage: "Number of random keys to sort (0 fills the capacity)",
	}
	seedFlag = &cli.Int64Flag{
		Name:  "seed",
		Usage: "Seed of the random key generator",
	}
	repeatFlag = &cli.IntFlag{
		Name:  "repeat",
		Usage: "Number of times the keys are sorted",
	}
	verboseFlag = &cli.BoolFlag{
		Name:  "verbose",
		Usage: "Report the progress of each sort stage",
	}
	sequentialFlag = &cli.BoolFlag{
		Name:  "sequential",
		Usage: "Execute work groups one after the other",
	}
	noTransposeFlag = &cli.BoolFlag{
		Name:  "no-transpose",
		Usage: "Sort without transposing the keys",
	}
	dumpFlag = &cli.StringFlag{
		Name:  "dump",
		Usage: "Write the final sorter state to a file, or to standard output with '-'",
	}
)

var app = &cli.App{
	Name:  "pradix",
	Usage: "Lane-parallel radix sort with permutation tracking",
	Commands: []*cli.Command{
		{
			Name:  "sort",
			Usage: "Sort random keys, verify them, and report timings",
			Flags: []cli.Flag{
				configFlag,
				keysFlag,
				seedFlag,
				repeatFlag,
				verboseFlag,
				sequentialFlag,
				noTransposeFlag,
				dumpFlag,
			},
			Action: handleSortCommand,
		},
		{
			Name:   "info",
			Usage:  "Describe the execution device",
			Flags:  []cli.Flag{configFlag, sequentialFlag},
			Action: handleInfoCommand,
		},
	},
}

// loadConfig reads the configuration file, if any, and applies the flags
// that were set explicitly.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet("keys") {
		cfg.Run.Keys = c.Int("keys")
	}
	if c.IsSet("seed") {
		cfg.Run.Seed = c.Int64("seed")
	}
	if c.IsSet("repeat") {
		cfg.Run.Repeat = c.Int("repeat")
	}
	if c.IsSet("verbose") {
		cfg.Run.Verbose = c.Bool("verbose")
	}
	if c.IsSet("sequential") {
		cfg.Device.Sequential = c.Bool("sequential")
	}
	if c.IsSet("no-transpose") {
		cfg.Sort.Transpose = !c.Bool("no-transpose")
	}
	if c.IsSet("dump") {
		cfg.Run.Dump = c.String("dump")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func handleInfoCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	printInfo(c.App.Writer, device.New(cfg.DeviceOptions()...).Info())
	return nil
}

func printInfo(w io.Writer, info device.Info) {
	fmt.Fprintf(w, "device:               %v\n", info.Name)
	fmt.Fprintf(w, "compute units:        %v\n", info.ComputeUnits)
	fmt.Fprintf(w, "local memory:         %v bytes\n", info.LocalMemSize)
	fmt.Fprintf(w, "max work-group size:  %v\n", info.MaxWorkGroupSize)
	fmt.Fprintf(w, "sequential:           %v\n", info.Sequential)
	fmt.Fprintf(w, "features:             %v\n", strings.Join(info.Features, " "))
}

func handleSortCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	out := c.App.Writer
	logger := log.New(c.App.ErrWriter, "pradix: ", log.Ltime|log.Lmicroseconds)
	if err := run(cfg, out, logger); err != nil {
		return err
	}
	return nil
}

// randomKeys returns n keys drawn uniformly from [0, p.MaxInt()).
func randomKeys(r *rand.Rand, n int, p sort.Params) []uint32 {
	keys := make([]uint32, n)
	bound := int64(p.MaxInt())
	for i := range keys {
		keys[i] = uint32(r.Int63n(bound))
	}
	return keys
}

func run(cfg *config.Config, out io.Writer, logger *log.Logger) error {
	dev := device.New(cfg.DeviceOptions()...)
	var opts []sort.Option
	if cfg.Run.Verbose {
		opts = append(opts, sort.WithLogger(logger))
	}
	s, err := sort.New(dev, cfg.Sort, opts...)
	if err != nil {
		return err
	}
	defer s.Release()

	p := cfg.Sort
	keys := randomKeys(rand.New(rand.NewSource(cfg.Run.Seed)), cfg.NumKeys(), p)
	fmt.Fprintf(out, "sorting %v keys of %v bits in %v passes of %v bits on %v groups of %v lanes\n",
		len(keys), p.TotalBits, p.Passes(), p.Bits, p.Groups, p.Items)

	var total, histogram, scan, reorder, transpose []float64
	for i := 0; i < cfg.Run.Repeat; i++ {
		if err := s.Load(keys); err != nil {
			return err
		}
		start := time.Now()
		if err := s.Sort(); err != nil {
			return err
		}
		elapsed := time.Since(start)
		t := s.Timings()
		total = append(total, elapsed.Seconds())
		histogram = append(histogram, t.Histogram.Seconds())
		scan = append(scan, t.Scan.Seconds())
		reorder = append(reorder, t.Reorder.Seconds())
		transpose = append(transpose, t.Transpose.Seconds())
		if err := s.Check(); err != nil {
			return err
		}
		if cfg.Run.Verbose {
			logger.Printf("run %v: sorted in %v", i+1, elapsed)
		}
	}
	fmt.Fprintln(out, "keys and permutation verified")

	report(out, "histogram", histogram)
	report(out, "scan", scan)
	report(out, "reorder", reorder)
	if p.Transpose {
		report(out, "transpose", transpose)
	}
	report(out, "total", total)

	hostKeys := append([]uint32(nil), keys...)
	hostPerm := make([]uint32, len(keys))
	for i := range hostPerm {
		hostPerm[i] = uint32(i)
	}
	start := time.Now()
	sort.StableSortPairs(hostKeys, hostPerm)
	host := time.Since(start)
	if err := sort.Verify(hostKeys, hostPerm, keys); err != nil {
		return fmt.Errorf("host merge sort: %w", err)
	}
	fmt.Fprintf(out, "host merge sort:  %v\n", host)
	if mean := stat.Mean(total, nil); mean > 0 {
		fmt.Fprintf(out, "speedup:          %.2f\n", host.Seconds()/mean)
	}

	if cfg.Run.Dump != "" {
		return dump(s, cfg.Run.Dump, out)
	}
	return nil
}

// report prints the mean and standard deviation of the durations, given
// in seconds, of one stage over all repetitions.
func report(out io.Writer, stage string, seconds []float64) {
	mean, std := stat.Mean(seconds, nil), 0.0
	if len(seconds) > 1 {
		std = stat.StdDev(seconds, nil)
	}
	fmt.Fprintf(out, "%-17s %v ± %v\n", stage+":", seconds2duration(mean), seconds2duration(std))
}

func seconds2duration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Microsecond)
}

func dump(s *sort.Sorter, path string, out io.Writer) (err error) {
	if path == "-" {
		return s.Dump(out)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return s.Dump(f)
}
