package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/notjustinshaw/btree/btree"
	"github.com/notjustinshaw/btree/common"
	"github.com/notjustinshaw/btree/common/benchmark"
	"github.com/notjustinshaw/btree/pebblestore"
)

func main() {
	quick := flag.Bool("quick", true, "Run quick benchmarks (smaller workloads)")
	csvPath := flag.String("csv", "benchmark_results.csv", "CSV output path")
	plotPath := flag.String("plot", "benchmark_results.png", "Throughput plot output path")
	flag.Parse()

	fmt.Println("Storage Engine Benchmark Suite")
	fmt.Println("================================")
	fmt.Println("Engines: cow-btree vs pebble")
	fmt.Println()

	var configs []benchmark.Config
	if *quick {
		configs = benchmark.QuickWorkloads()
	} else {
		configs = benchmark.StandardWorkloads()
	}

	engines := []string{"cow-btree", "pebble"}
	results := make(map[string][]benchmark.Result)

	for _, engine := range engines {
		for _, cfg := range configs {
			result, err := runOne(engine, cfg)
			if err != nil {
				log.Fatalf("%s/%s: %v", engine, cfg.Name, err)
			}
			results[engine] = append(results[engine], result)
			printResult(engine, result)
		}
	}

	if err := writeCSV(*csvPath, engines, results); err != nil {
		log.Fatalf("failed to write CSV: %v", err)
	}
	fmt.Printf("Results written to %s\n", *csvPath)

	if err := renderPlot(*plotPath, engines, configs, results); err != nil {
		log.Fatalf("failed to render plot: %v", err)
	}
	fmt.Printf("Throughput plot written to %s\n", *plotPath)
}

func runOne(engine string, cfg benchmark.Config) (benchmark.Result, error) {
	dir, err := os.MkdirTemp("", "bench-"+engine+"-*")
	if err != nil {
		return benchmark.Result{}, err
	}
	defer os.RemoveAll(dir)

	var store common.Store
	switch engine {
	case "cow-btree":
		store, err = btree.New(btree.DefaultConfig(dir))
	case "pebble":
		store, err = pebblestore.Open(dir + "/pebble")
	default:
		return benchmark.Result{}, fmt.Errorf("unknown engine %q", engine)
	}
	if err != nil {
		return benchmark.Result{}, err
	}
	defer store.Close()

	return benchmark.Run(store, cfg)
}

func printResult(engine string, r benchmark.Result) {
	fmt.Printf("%-10s %-12s %10.0f ops/sec  write p99 %-10v read p99 %v\n",
		engine, r.Config.Name, r.OpsPerSec, r.WriteLatency.P99, r.ReadLatency.P99)
}

func writeCSV(path string, engines []string, results map[string][]benchmark.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{"Engine", "Workload", "OpsPerSec", "WriteP50Ns", "WriteP99Ns", "ReadP50Ns", "ReadP99Ns", "DiskBytes"})
	for _, engine := range engines {
		for _, r := range results[engine] {
			w.Write([]string{
				engine,
				r.Config.Name,
				strconv.FormatFloat(r.OpsPerSec, 'f', 0, 64),
				strconv.FormatInt(r.WriteLatency.P50.Nanoseconds(), 10),
				strconv.FormatInt(r.WriteLatency.P99.Nanoseconds(), 10),
				strconv.FormatInt(r.ReadLatency.P50.Nanoseconds(), 10),
				strconv.FormatInt(r.ReadLatency.P99.Nanoseconds(), 10),
				strconv.FormatInt(r.EngineStats.TotalDiskSize, 10),
			})
		}
	}
	return w.Error()
}

func renderPlot(path string, engines []string, configs []benchmark.Config, results map[string][]benchmark.Result) error {
	p := plot.New()
	p.Title.Text = "Throughput by workload"
	p.Y.Label.Text = "ops/sec"

	width := vg.Points(24)
	offsets := []vg.Length{-width / 2, width / 2}

	for i, engine := range engines {
		values := make(plotter.Values, 0, len(results[engine]))
		for _, r := range results[engine] {
			values = append(values, r.OpsPerSec)
		}

		bars, err := plotter.NewBarChart(values, width)
		if err != nil {
			return err
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(i)
		bars.Offset = offsets[i%len(offsets)]
		p.Add(bars)
		p.Legend.Add(engine, bars)
	}
	p.Legend.Top = true

	names := make([]string, 0, len(configs))
	for _, cfg := range configs {
		names = append(names, cfg.Name)
	}
	p.NominalX(names...)

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
