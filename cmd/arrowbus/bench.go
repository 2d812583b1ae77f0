package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/arrowbus/internal/bench"
)

func newBenchCmd() *cobra.Command {
	var (
		codecs   string
		sizes    string
		jsonPath string
		quiet    bool
		cpuFile  string
		memFile  string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark codec encode and decode",
		Long: `Measure encode and decode time for each codec across batch sizes and
report the payload overhead of the self-describing format.

Example:
  arrowbus bench --codec all --sizes 1,100,1000000 --json bench.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := bench.ParseKinds(codecs)
			if err != nil {
				return err
			}
			rowCounts, err := bench.ParseSizes(sizes)
			if err != nil {
				return err
			}

			if cpuFile != "" {
				stopCPU, err := startCPUProfile(cpuFile)
				if err != nil {
					return err
				}
				defer stopCPU()
			}

			out := cmd.OutOrStdout()
			results, err := bench.Suite(kinds, rowCounts, func(r bench.Result) {
				if !quiet {
					fmt.Fprintf(out, "%s/%s/rows=%d\t%d ns/op\n", r.Codec, r.Op, r.Rows, r.NsPerOp)
				}
			})
			if err != nil {
				return err
			}
			overhead, err := bench.PayloadOverhead(rowCounts)
			if err != nil {
				return err
			}

			if memFile != "" {
				if err := writeHeapProfile(memFile); err != nil {
					return err
				}
			}

			report := bench.NewReport(results, overhead)
			if !quiet {
				fmt.Fprintln(out)
			}
			if err := report.WriteTable(out); err != nil {
				return err
			}
			if jsonPath != "" {
				if err := report.Save(jsonPath); err != nil {
					return err
				}
				fmt.Fprintf(out, "\nreport saved to %s\n", jsonPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&codecs, "codec", "all", "Codec to measure: ipc, raw or all")
	cmd.Flags().StringVar(&sizes, "sizes", joinSizes(bench.Sizes), "Comma separated row counts")
	cmd.Flags().StringVar(&jsonPath, "json", "", "Write the report as JSON to this file")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the final table")
	cmd.Flags().StringVar(&cpuFile, "cpuprofile", "", "Write a CPU profile of the run to file")
	cmd.Flags().StringVar(&memFile, "memprofile", "", "Write a heap profile after the run to file")
	return cmd
}

func joinSizes(sizes []int) string {
	parts := make([]string, len(sizes))
	for i, n := range sizes {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func startCPUProfile(path string) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to start CPU profile: %w", err)
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}, nil
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create memory profile: %w", err)
	}
	defer f.Close()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write memory profile: %w", err)
	}
	return nil
}
