// Package benchmark drives a common.Store through configurable
// workloads and reports throughput and latency percentiles.
package benchmark

import (
	"errors"
	"fmt"
	"time"

	"github.com/notjustinshaw/btree/common"
)

// WorkloadType defines the access pattern
type WorkloadType string

const (
	WorkloadWriteOnly WorkloadType = "write-only" // 100% writes
	WorkloadReadHeavy WorkloadType = "read-heavy" // 95% reads
	WorkloadBalanced  WorkloadType = "balanced"   // 50/50
)

// Config defines a benchmark scenario
type Config struct {
	Name string

	WorkloadType    WorkloadType
	KeyDistribution KeyDistribution

	NumKeys   int // Total unique keys in dataset
	KeySize   int // Bytes, >= 16
	ValueSize int // Bytes

	NumOps      int // Operations to run
	PreloadKeys int // Keys to load before the benchmark starts

	Seed int64
}

type Result struct {
	Config Config

	TotalOps  int64
	WriteOps  int64
	ReadOps   int64
	Duration  time.Duration
	OpsPerSec float64

	WriteLatency LatencyStats
	ReadLatency  LatencyStats

	EngineStats common.Stats
}

// QuickWorkloads returns a small scenario set for fast comparisons.
func QuickWorkloads() []Config {
	base := Config{
		NumKeys:     5000,
		KeySize:     16,
		ValueSize:   128,
		NumOps:      20000,
		PreloadKeys: 2500,
		Seed:        42,
	}

	workloads := []WorkloadType{WorkloadWriteOnly, WorkloadReadHeavy, WorkloadBalanced}
	configs := make([]Config, 0, len(workloads))
	for _, w := range workloads {
		c := base
		c.Name = string(w)
		c.WorkloadType = w
		c.KeyDistribution = DistUniform
		configs = append(configs, c)
	}
	return configs
}

// StandardWorkloads returns the full scenario set.
func StandardWorkloads() []Config {
	configs := QuickWorkloads()
	for i := range configs {
		configs[i].NumKeys = 100000
		configs[i].NumOps = 500000
		configs[i].PreloadKeys = 50000
	}
	return configs
}

// writeRatio maps a workload type to its write fraction in percent.
func writeRatio(w WorkloadType) int {
	switch w {
	case WorkloadWriteOnly:
		return 100
	case WorkloadReadHeavy:
		return 5
	case WorkloadBalanced:
		return 50
	default:
		return 50
	}
}

// Run drives store through the configured workload. The store is
// driven single-threaded: the engines under test are single-writer by
// contract, so concurrency would measure lock convoys, not the trees.
func Run(store common.Store, cfg Config) (Result, error) {
	if cfg.KeySize < 16 {
		return Result{}, fmt.Errorf("key size must be at least 16, got %d", cfg.KeySize)
	}

	kg := NewKeyGenerator(cfg.NumKeys, cfg.KeySize, cfg.KeyDistribution, cfg.Seed)

	for i := 0; i < cfg.PreloadKeys; i++ {
		if err := store.Insert(kg.KeyAt(i), kg.NextValue(cfg.ValueSize)); err != nil {
			return Result{}, fmt.Errorf("preload failed: %w", err)
		}
	}

	writes := NewLatencyHistogram()
	reads := NewLatencyHistogram()
	ratio := writeRatio(cfg.WorkloadType)

	result := Result{Config: cfg}
	start := time.Now()

	for op := 0; op < cfg.NumOps; op++ {
		key := kg.NextKey()
		if op%100 < ratio {
			value := kg.NextValue(cfg.ValueSize)
			opStart := time.Now()
			err := store.Insert(key, value)
			writes.Record(time.Since(opStart))
			if err != nil {
				return result, fmt.Errorf("insert failed: %w", err)
			}
			result.WriteOps++
		} else {
			opStart := time.Now()
			_, err := store.Search(key)
			reads.Record(time.Since(opStart))
			if err != nil && !errors.Is(err, common.ErrKeyNotFound) {
				return result, fmt.Errorf("search failed: %w", err)
			}
			result.ReadOps++
		}
	}

	result.Duration = time.Since(start)
	result.TotalOps = result.WriteOps + result.ReadOps
	if result.Duration > 0 {
		result.OpsPerSec = float64(result.TotalOps) / result.Duration.Seconds()
	}
	result.WriteLatency = writes.Stats()
	result.ReadLatency = reads.Stats()
	result.EngineStats = store.Stats()

	return result, nil
}
