package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/heaplab/regionheap/heap"
	"github.com/heaplab/regionheap/monitoring"
	"github.com/heaplab/regionheap/recording"
	"github.com/heaplab/regionheap/telemetry"
	"github.com/heaplab/regionheap/uncommit"
)

var (
	regionCountFlag   int
	regionSizeFlag    uint64
	minRegionsFlag    int
	softMaxFlag       uint64
	uncommitDelayFlag time.Duration
	durationFlag      time.Duration
	mutatorsFlag      int
	mmapFlag          bool
	monitorFlag       bool
	portFlag          int
	openFlag          bool
	csvFlag           string
	dbFlag            string
)

func init() {
	rootCmd.Flags().IntVar(&regionCountFlag, "regions",
		envInt("HEAPSIM_REGIONS", 64),
		"number of regions in the heap")
	rootCmd.Flags().Uint64Var(&regionSizeFlag, "region-size",
		uint64(envInt("HEAPSIM_REGION_SIZE", int(1*heap.MB))),
		"size of each region in bytes")
	rootCmd.Flags().IntVar(&minRegionsFlag, "min-regions", 8,
		"number of regions that always stay committed")
	rootCmd.Flags().Uint64Var(&softMaxFlag, "soft-max", 0,
		"soft max capacity in bytes, 0 keeps the max capacity")
	rootCmd.Flags().DurationVar(&uncommitDelayFlag, "uncommit-delay",
		10*time.Second,
		"how long a region must stay empty before it can be uncommitted")
	rootCmd.Flags().DurationVar(&durationFlag, "duration", 30*time.Second,
		"how long the allocation workload runs")
	rootCmd.Flags().IntVar(&mutatorsFlag, "mutators", 4,
		"number of concurrent allocating goroutines")
	rootCmd.Flags().BoolVar(&mmapFlag, "mmap", false,
		"back regions with real mmapped memory")
	rootCmd.Flags().BoolVar(&monitorFlag, "monitor", false,
		"start the monitoring server")
	rootCmd.Flags().IntVar(&portFlag, "port",
		envInt("HEAPSIM_MONITOR_PORT", 0),
		"port for the monitoring server, 0 picks a random port")
	rootCmd.Flags().BoolVar(&openFlag, "open", false,
		"open the monitoring page in a browser")
	rootCmd.Flags().StringVar(&csvFlag, "csv", "",
		"record reclaiming passes to this CSV file")
	rootCmd.Flags().StringVar(&dbFlag, "db",
		os.Getenv("HEAPSIM_DB"),
		"record reclaiming passes to this SQLite database")
}

func envInt(name string, fallback int) int {
	s := os.Getenv(name)
	if s == "" {
		return fallback
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		log.Panicf("cannot parse %s=%q: %s", name, s, err)
	}

	return v
}

func run(_ *cobra.Command, _ []string) {
	h := buildHeap()
	c := buildController(h)
	setUpTelemetry(c)

	if monitorFlag {
		monitor := monitoring.NewMonitor().WithPortNumber(portFlag)
		if openFlag {
			monitor = monitor.WithAutoOpen()
		}
		monitor.RegisterHeap(h)
		monitor.RegisterController(c)
		monitor.StartServer()
	}

	c.Start()

	runWorkload(h, c)

	c.RequestTermination()
	for !c.IsTerminated() {
		time.Sleep(10 * time.Millisecond)
	}

	printSummary(h)
}

func buildHeap() *heap.Heap {
	builder := heap.MakeBuilder().
		WithRegionCount(regionCountFlag).
		WithRegionSize(regionSizeFlag).
		WithMinCapacity(uint64(minRegionsFlag) * regionSizeFlag)

	if softMaxFlag > 0 {
		builder = builder.WithSoftMaxCapacity(softMaxFlag)
	}

	if mmapFlag {
		backing, err := heap.NewMmapBacking(
			uint64(regionCountFlag) * regionSizeFlag)
		if err != nil {
			log.Panicf("cannot mmap heap backing: %s", err)
		}
		builder = builder.WithBacking(backing)
	}

	return builder.Build("Heap")
}

func buildController(h *heap.Heap) *uncommit.Controller {
	return uncommit.MakeBuilder().
		WithHeap(h).
		WithUncommitDelay(uncommitDelayFlag).
		Build("Uncommitter")
}

func setUpTelemetry(c *uncommit.Controller) {
	if csvFlag != "" {
		writer := telemetry.NewCSVPassWriter(csvFlag)
		writer.Init()
		telemetry.CollectPasses(c, writer)
	}

	if dbFlag != "" {
		recorder := recording.NewSQLiteWriter(dbFlag)
		recorder.Init()
		telemetry.CollectPasses(c, telemetry.NewDBPassWriter(recorder))
	}
}

// runWorkload churns regions from several goroutines for the first half of
// the run, then leaves the heap idle so that the controller can shrink it.
func runWorkload(h *heap.Heap, c *uncommit.Controller) {
	churnUntil := time.Now().Add(durationFlag / 2)

	var wg sync.WaitGroup
	for i := 0; i < mutatorsFlag; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			mutate(h, churnUntil, rand.New(rand.NewSource(seed)))
		}(int64(i))
	}
	wg.Wait()

	// Idle phase. Ask for one explicit shrink halfway through to show the
	// immediate trigger next to the periodic one.
	idle := durationFlag / 2
	time.Sleep(idle / 2)
	c.NotifyExplicitGCRequested()
	time.Sleep(idle / 2)
}

func mutate(h *heap.Heap, until time.Time, rng *rand.Rand) {
	held := make([]*heap.Region, 0, regionCountFlag)

	for time.Now().Before(until) {
		if rng.Intn(3) > 0 || len(held) == 0 {
			kind := heap.ForMutator
			if rng.Intn(4) == 0 {
				kind = heap.ForGC
			}

			r, err := h.AllocateRegion(kind)
			if err == heap.ErrOutOfRegions {
				freeAll(h, &held)
				continue
			}
			held = append(held, r)
		} else {
			i := rng.Intn(len(held))
			h.FreeRegion(held[i])
			held = append(held[:i], held[i+1:]...)
		}

		time.Sleep(time.Duration(rng.Intn(5)) * time.Millisecond)
	}

	freeAll(h, &held)
}

func freeAll(h *heap.Heap, held *[]*heap.Region) {
	for _, r := range *held {
		h.FreeRegion(r)
	}
	*held = (*held)[:0]
}

func printSummary(h *heap.Heap) {
	s := h.Snapshot()
	fmt.Printf("regions:   %d x %d bytes\n", s.RegionCount, s.RegionSize)
	fmt.Printf("committed: %d bytes\n", s.Committed)
	fmt.Printf("min:       %d bytes\n", s.MinCapacity)
	fmt.Printf("soft max:  %d bytes\n", s.SoftMaxCapacity)
}
