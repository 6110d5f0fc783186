// Command storebench renders a synthetic document against the resource store
// under a memory budget and exposes optional pprof/Prometheus endpoints.
//
// Glyph bitmaps are keyed by indirect references (hash index path), fonts by
// names (list scan path). Both are charged to an alloc.Budget whose scavenger
// is the store, so allocation failures evict cached values.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/resstore/alloc"
	"github.com/IvanBrykalov/resstore/cache"
	pmet "github.com/IvanBrykalov/resstore/metrics/prom"
	"github.com/IvanBrykalov/resstore/object"
)

// glyph is a rendered glyph bitmap.
type glyph struct {
	cache.Refs
	b      *alloc.Budget
	bitmap []byte
}

func (g *glyph) Finalize() { g.b.Free(int64(len(g.bitmap))) }

// font is a parsed font program.
type font struct {
	cache.Refs
	b    *alloc.Budget
	data []byte
}

func (f *font) Finalize() { f.b.Free(int64(len(f.data))) }

type counters struct {
	ops, loads, oom atomic.Uint64
}

func main() {
	// ---- Flags ----
	fc := DefaultConfig()
	var (
		cfgPath = flag.String("config", "", "YAML config file (flags override it)")
		verbose = flag.Bool("v", false, "debug logging")
		dump    = flag.Bool("dump", false, "dump store contents on exit")
	)
	flag.Var(&fc.Store.MaxSize, "max-size", "store size bound, e.g. 48MiB (0 = unlimited)")
	flag.IntVar(&fc.Store.IndexShards, "index-shards", 0, "cache index shards (0 = auto)")
	flag.Var(&fc.Budget.Limit, "budget", "memory budget, e.g. 64MiB (0 = unlimited)")
	flag.IntVar(&fc.Workload.Workers, "workers", fc.Workload.Workers, "number of worker goroutines")
	flag.DurationVar(&fc.Workload.Duration, "duration", fc.Workload.Duration, "benchmark duration")
	flag.IntVar(&fc.Workload.Glyphs, "glyphs", fc.Workload.Glyphs, "glyph keyspace size")
	flag.IntVar(&fc.Workload.Fonts, "fonts", fc.Workload.Fonts, "font keyspace size")
	flag.IntVar(&fc.Workload.FontPct, "font-pct", fc.Workload.FontPct, "font request percentage [0..100]")
	flag.Float64Var(&fc.Workload.ZipfS, "zipf_s", fc.Workload.ZipfS, "Zipf s > 1 (skew)")
	flag.Int64Var(&fc.Workload.Seed, "seed", fc.Workload.Seed, "random seed")
	flag.StringVar(&fc.HTTP.Metrics, "http", fc.HTTP.Metrics, "serve Prometheus metrics at addr")
	flag.StringVar(&fc.HTTP.Pprof, "pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := LoadConfig(*cfgPath)
	if err != nil {
		log.Error("config", "err", err)
		os.Exit(2)
	}
	applyFlags(&cfg, &fc)
	if err := cfg.Validate(); err != nil {
		log.Error("config", "err", err)
		os.Exit(2)
	}

	// ---- pprof server (on DefaultServeMux) ----
	if cfg.HTTP.Pprof != "" {
		go func() {
			log.Info("pprof: serving", "addr", cfg.HTTP.Pprof)
			log.Error("pprof", "err", http.ListenAndServe(cfg.HTTP.Pprof, nil))
		}()
	}

	// ---- Budget + store ----
	budget := alloc.NewBudget(alloc.Config{LimitBytes: int64(cfg.Budget.Limit), Logger: log})
	metrics := pmet.New(nil, "resstore", "bench", nil)
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "resstore",
		Subsystem: "bench",
		Name:      "budget_used_bytes",
		Help:      "Bytes reserved from the memory budget",
	}, func() float64 { return float64(budget.Usage()) }))

	s := cache.New(cache.Options{
		MaxSize:     uint64(cfg.Store.MaxSize),
		Allocator:   budget,
		IndexShards: cfg.Store.IndexShards,
		Metrics:     metrics,
		Logger:      log,
	})
	budget.SetScavenger(s)

	// ---- Prometheus metrics (on DefaultServeMux) ----
	if cfg.HTTP.Metrics != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info("metrics: serving", "addr", cfg.HTTP.Metrics)
			log.Error("metrics", "err", http.ListenAndServe(cfg.HTTP.Metrics, nil))
		}()
	}

	// ---- Load generation ----
	var c counters
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Workload.Duration)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workload.Workers; w++ {
		g.Go(func() error { return work(gctx, w, cfg.Workload, s, budget, &c) })
	}
	if err := g.Wait(); err != nil {
		log.Error("workload", "err", err)
	}
	elapsed := time.Since(start)

	// ---- Report ----
	st := s.Stats()
	ops := c.ops.Load()
	fmt.Printf("workers=%d glyphs=%d fonts=%d dur=%v seed=%d\n",
		cfg.Workload.Workers, cfg.Workload.Glyphs, cfg.Workload.Fonts, elapsed, cfg.Workload.Seed)
	fmt.Printf("ops=%d (%.0f ops/s)  loads=%d  oom=%d\n",
		ops, float64(ops)/elapsed.Seconds(), c.loads.Load(), c.oom.Load())
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", st.Hits, st.Misses, st.HitRate()*100)
	fmt.Printf("entries=%d  size=%s/%s  budget=%s/%s  scavenges=%d\n",
		st.Entries, ByteSize(st.Size), ByteSize(st.MaxSize),
		ByteSize(budget.Usage()), cfg.Budget.Limit, budget.Scavenges())
	for r := cache.EvictCapacity; r <= cache.EvictClear; r++ {
		fmt.Printf("evictions[%s]=%d\n", r, st.Evictions[r])
	}
	if *dump {
		if err := s.Dump(os.Stdout); err != nil {
			log.Error("dump", "err", err)
		}
	}
	if err := s.Close(); err != nil {
		log.Error("close", "err", err)
	}
	log.Debug("done", "budget_used", budget.Usage())
}

// work issues glyph and font requests until ctx ends. Budget exhaustion is
// counted, not fatal: the renderer would fall back to uncached drawing.
func work(ctx context.Context, id int, w WorkloadConfig, s *cache.Store, b *alloc.Budget, c *counters) error {
	// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
	r := rand.New(rand.NewSource(w.Seed + int64(id)*9973))
	zipf := rand.NewZipf(r, w.ZipfS, w.ZipfV, uint64(w.Glyphs-1))

	loadGlyph := func(context.Context) (*glyph, uint64, error) {
		n := int64(w.GlyphSize)/2 + r.Int63n(int64(w.GlyphSize))
		if err := b.Alloc(n); err != nil {
			return nil, 0, err
		}
		c.loads.Add(1)
		return &glyph{Refs: cache.Counted(), b: b, bitmap: make([]byte, n)}, uint64(n), nil
	}
	loadFont := func(context.Context) (*font, uint64, error) {
		n := int64(w.FontSize)
		if err := b.Alloc(n); err != nil {
			return nil, 0, err
		}
		c.loads.Add(1)
		return &font{Refs: cache.Counted(), b: b, data: make([]byte, n)}, uint64(n), nil
	}

	for ctx.Err() == nil {
		c.ops.Add(1)
		var (
			v   cache.Storable
			err error
		)
		if r.Intn(100) < w.FontPct {
			v, err = cache.GetOrLoad(ctx, s, object.Name("F"+strconv.Itoa(r.Intn(w.Fonts))), loadFont)
		} else {
			v, err = cache.GetOrLoad(ctx, s, object.NewRef(int(zipf.Uint64())+1, 0), loadGlyph)
		}
		switch {
		case err == nil:
			s.Drop(v)
		case errors.Is(err, alloc.ErrOutOfMemory):
			c.oom.Add(1)
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}
	}
	return nil
}

// applyFlags copies explicitly set flags from fc over cfg.
func applyFlags(cfg, fc *Config) {
	set := map[string]func(){
		"max-size":     func() { cfg.Store.MaxSize = fc.Store.MaxSize },
		"index-shards": func() { cfg.Store.IndexShards = fc.Store.IndexShards },
		"budget":       func() { cfg.Budget.Limit = fc.Budget.Limit },
		"workers":      func() { cfg.Workload.Workers = fc.Workload.Workers },
		"duration":     func() { cfg.Workload.Duration = fc.Workload.Duration },
		"glyphs":       func() { cfg.Workload.Glyphs = fc.Workload.Glyphs },
		"fonts":        func() { cfg.Workload.Fonts = fc.Workload.Fonts },
		"font-pct":     func() { cfg.Workload.FontPct = fc.Workload.FontPct },
		"zipf_s":       func() { cfg.Workload.ZipfS = fc.Workload.ZipfS },
		"seed":         func() { cfg.Workload.Seed = fc.Workload.Seed },
		"http":         func() { cfg.HTTP.Metrics = fc.HTTP.Metrics },
		"pprof":        func() { cfg.HTTP.Pprof = fc.HTTP.Pprof },
	}
	flag.Visit(func(f *flag.Flag) {
		if apply, ok := set[f.Name]; ok {
			apply()
		}
	})
}
