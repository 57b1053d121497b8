package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xDarkicex/quickhnsw/internal/index"
	"github.com/xDarkicex/quickhnsw/internal/index/hnsw"
	"github.com/xDarkicex/quickhnsw/internal/obs"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build an index from a vector file",
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		out, _ := cmd.Flags().GetString("out")
		showMetrics, _ := cmd.Flags().GetBool("metrics")

		if cmd.Flags().Changed("m") {
			cfg.Index.M, _ = cmd.Flags().GetInt("m")
		}
		if cmd.Flags().Changed("ef-construction") {
			cfg.Index.EfConstruction, _ = cmd.Flags().GetInt("ef-construction")
		}
		if cmd.Flags().Changed("quant-bits") {
			cfg.Index.QuantBits, _ = cmd.Flags().GetInt("quant-bits")
		}
		if cmd.Flags().Changed("prefetch") {
			cfg.Index.Prefetch, _ = cmd.Flags().GetBool("prefetch")
		}
		if cmd.Flags().Changed("seed") {
			cfg.Index.Seed, _ = cmd.Flags().GetInt64("seed")
		}

		file, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		records, err := readVectors(file)
		file.Close()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return fmt.Errorf("no vectors in %s", input)
		}

		if cfg.Index.Dimension == 0 {
			cfg.Index.Dimension = len(records[0].Vector)
		}
		if cmd.Flags().Changed("max-elements") {
			cfg.Index.MaxElements, _ = cmd.Flags().GetInt("max-elements")
		} else if cfg.Index.MaxElements < len(records) {
			cfg.Index.MaxElements = len(records)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		metrics := obs.NewMetrics()
		idx, err := hnsw.NewHNSW(cfg.HNSW(&logger, metrics))
		if err != nil {
			return err
		}
		defer idx.Close()

		ctx := cmd.Context()
		start := time.Now()
		bar := progressbar.NewOptions(len(records),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("inserting"),
			progressbar.OptionOnCompletion(func() { fmt.Fprint(os.Stderr, "\n") }),
		)
		for _, rec := range records {
			if err := idx.Insert(ctx, rec.Vector, rec.Label); err != nil {
				return fmt.Errorf("failed to insert label %d: %w", rec.Label, err)
			}
			if err := bar.Add(1); err != nil {
				return err
			}
		}

		if err := idx.Save(out); err != nil {
			return err
		}

		logger.Info().
			Int("vectors", idx.Len()).
			Int("dimension", cfg.Index.Dimension).
			Dur("elapsed", time.Since(start)).
			Str("out", out).
			Msg("index built")

		if showMetrics {
			return writeMetrics(metrics)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Query an index",
	RunE: func(cmd *cobra.Command, args []string) error {
		indexPath, _ := cmd.Flags().GetString("index")
		queryStr, _ := cmd.Flags().GetString("query")
		queriesPath, _ := cmd.Flags().GetString("queries")
		outputJSON, _ := cmd.Flags().GetBool("json")

		k := cfg.Search.K
		if cmd.Flags().Changed("k") {
			k, _ = cmd.Flags().GetInt("k")
		}
		ef := cfg.Search.Ef
		if cmd.Flags().Changed("ef") {
			ef, _ = cmd.Flags().GetInt("ef")
		}

		var queries [][]float32
		switch {
		case queryStr != "" && queriesPath != "":
			return fmt.Errorf("--query and --queries are exclusive")
		case queryStr != "":
			q, err := parseVector(queryStr)
			if err != nil {
				return fmt.Errorf("invalid query: %w", err)
			}
			queries = append(queries, q)
		case queriesPath != "":
			file, err := os.Open(queriesPath)
			if err != nil {
				return fmt.Errorf("failed to open queries: %w", err)
			}
			records, err := readVectors(file)
			file.Close()
			if err != nil {
				return err
			}
			for _, rec := range records {
				queries = append(queries, rec.Vector)
			}
		default:
			return fmt.Errorf("one of --query or --queries is required")
		}

		idx, err := openIndex(indexPath)
		if err != nil {
			return err
		}
		defer idx.Close()

		start := time.Now()
		results, err := idx.SearchBatch(cmd.Context(), queries, k, ef)
		if err != nil {
			return err
		}
		logger.Debug().
			Int("queries", len(queries)).
			Dur("elapsed", time.Since(start)).
			Msg("search finished")

		if outputJSON {
			return printJSON(results)
		}
		for i, res := range results {
			if len(queries) > 1 {
				fmt.Printf("query %d:\n", i)
			}
			for rank, r := range res {
				fmt.Printf("%3d. label=%d distance=%.6f\n", rank+1, r.Label, r.Distance)
			}
		}
		return nil
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute layer-0 neighbors and save the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		indexPath, _ := cmd.Flags().GetString("index")
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = indexPath
		}

		opts := cfg.RebuildOptions()
		if cmd.Flags().Changed("ratio") {
			ratio, _ := cmd.Flags().GetFloat32("ratio")
			opts.ConnectivityRatio = ratio
		}
		if cmd.Flags().Changed("batch-size") {
			opts.BatchSize, _ = cmd.Flags().GetInt("batch-size")
		}
		if cmd.Flags().Changed("background") {
			opts.Background, _ = cmd.Flags().GetBool("background")
		}

		idx, err := openIndex(indexPath)
		if err != nil {
			return err
		}
		defer idx.Close()

		stats, err := idx.Rebuild(opts)
		if err != nil {
			return err
		}
		if opts.Background {
			stats, err = followRebuild(cmd.Context(), idx)
			if err != nil {
				return err
			}
		}

		if err := idx.Save(out); err != nil {
			return err
		}

		fmt.Printf("nodes processed: %d\nedges added:     %d\nedges removed:   %d\nelapsed:         %s\n",
			stats.NodesProcessed, stats.EdgesAdded, stats.EdgesRemoved, stats.Elapsed)
		return nil
	},
}

// followRebuild renders background rebuild progress until it completes
func followRebuild(ctx context.Context, idx *hnsw.Index) (hnsw.RebuildStats, error) {
	bar := progressbar.NewOptions(idx.Len(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("rebuilding"),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(os.Stderr, "\n") }),
	)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		stats := idx.RebuildStatus()
		if err := bar.Set(int(stats.NodesProcessed)); err != nil {
			return stats, err
		}
		if stats.Completed {
			return stats, bar.Finish()
		}

		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-ticker.C:
		}
	}
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		indexPath, _ := cmd.Flags().GetString("index")
		outputJSON, _ := cmd.Flags().GetBool("json")

		idx, err := openIndex(indexPath)
		if err != nil {
			return err
		}
		defer idx.Close()

		stats := idx.Stats()
		if outputJSON {
			return printJSON(stats)
		}

		fmt.Printf("Vectors:         %d / %d\n", stats.Count, stats.Capacity)
		fmt.Printf("Dimension:       %d\n", stats.Dimension)
		fmt.Printf("M / M0:          %d / %d\n", stats.M, stats.M0)
		fmt.Printf("EfConstruction:  %d\n", stats.EfConstruction)
		fmt.Printf("Quantization:    %d-bit (%d bytes/code)\n", stats.QuantBits, stats.CodeSize)
		fmt.Printf("Max level:       %d\n", stats.MaxLevel)
		if stats.HasEntry {
			fmt.Printf("Entry label:     %d\n", stats.EntryLabel)
		}
		for level, n := range stats.LevelCounts {
			fmt.Printf("  level %2d:      %d nodes\n", level, n)
		}
		fmt.Printf("Avg degree (L0): %.2f\n", stats.AvgDegree0)
		fmt.Printf("Memory:          %d bytes\n", stats.MemoryBytes)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the structural invariants of an index",
	RunE: func(cmd *cobra.Command, args []string) error {
		indexPath, _ := cmd.Flags().GetString("index")

		idx, err := openIndex(indexPath)
		if err != nil {
			return err
		}
		defer idx.Close()

		status, err := obs.NewHealthChecker(idx).Check(cmd.Context())
		if err != nil {
			return err
		}
		for name, check := range status.Checks {
			fmt.Printf("%-9s healthy=%-5t %s\n", name, check.Healthy, check.Message)
		}
		if status.Status == "unhealthy" {
			return fmt.Errorf("index %s failed verification", indexPath)
		}
		fmt.Printf("status: %s\n", status.Status)

		samples, _ := cmd.Flags().GetInt("recall")
		if samples <= 0 || idx.Len() == 0 {
			return nil
		}
		recall, err := measureRecall(cmd.Context(), idx, samples, cfg.Search.K, cfg.Search.Ef)
		if err != nil {
			return err
		}
		fmt.Printf("recall@%d (ef=%d, %d queries): %.4f\n", cfg.Search.K, cfg.Search.Ef, min(samples, idx.Len()), recall)
		return nil
	},
}

// measureRecall queries with evenly spaced stored vectors and compares the
// graph answers against exhaustive search
func measureRecall(ctx context.Context, idx *hnsw.Index, samples, k, ef int) (float64, error) {
	stride := max(idx.Len()/samples, 1)
	var queries [][]float32
	i := 0
	idx.Each(func(_ uint64, vector []float32) bool {
		if i%stride == 0 {
			queries = append(queries, append([]float32(nil), vector...))
		}
		i++
		return len(queries) < samples
	})

	truth, err := index.GroundTruth(ctx, idx, queries, k)
	if err != nil {
		return 0, err
	}
	results, err := idx.SearchBatch(ctx, queries, k, ef)
	if err != nil {
		return 0, err
	}
	return index.Recall(truth, results), nil
}

func openIndex(path string) (*hnsw.Index, error) {
	base := cfg.HNSW(&logger, nil)
	return hnsw.Load(path, base)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeMetrics(metrics *obs.Metrics) error {
	families, err := metrics.Registry().Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(os.Stdout, expfmt.FmtText)
	for _, f := range families {
		if err := enc.Encode(f); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	buildCmd.Flags().StringP("input", "i", "", "Vector file, one vector per line")
	buildCmd.Flags().StringP("out", "o", "index.qh", "Output index path (.zst compresses)")
	buildCmd.Flags().Int("max-elements", 0, "Capacity (default: config or vector count)")
	buildCmd.Flags().Int("m", 16, "Links per node on upper layers")
	buildCmd.Flags().Int("ef-construction", 200, "Candidate list size during insertion")
	buildCmd.Flags().Int("quant-bits", 8, "Quantization width (4 or 8)")
	buildCmd.Flags().Bool("prefetch", false, "Enable neighbor prefetch during search")
	buildCmd.Flags().Int64("seed", 0, "Level generator seed (0 = clock)")
	buildCmd.Flags().Bool("metrics", false, "Print Prometheus metrics after building")
	buildCmd.MarkFlagRequired("input")

	searchCmd.Flags().String("index", "", "Index file")
	searchCmd.Flags().String("query", "", "Query vector (comma-separated)")
	searchCmd.Flags().String("queries", "", "File of query vectors")
	searchCmd.Flags().Int("k", 10, "Number of results")
	searchCmd.Flags().Int("ef", 64, "Candidate list size during search")
	searchCmd.Flags().Bool("json", false, "Output as JSON")
	searchCmd.MarkFlagRequired("index")

	rebuildCmd.Flags().String("index", "", "Index file")
	rebuildCmd.Flags().String("out", "", "Output path (default: overwrite --index)")
	rebuildCmd.Flags().Float32("ratio", 0.8, "Connectivity ratio")
	rebuildCmd.Flags().Int("batch-size", 1000, "Nodes per write-lock hold")
	rebuildCmd.Flags().Bool("background", false, "Rebuild on a worker and show progress")
	rebuildCmd.MarkFlagRequired("index")

	infoCmd.Flags().String("index", "", "Index file")
	infoCmd.Flags().Bool("json", false, "Output as JSON")
	infoCmd.MarkFlagRequired("index")

	verifyCmd.Flags().String("index", "", "Index file")
	verifyCmd.Flags().Int("recall", 0, "Measure recall with this many stored vectors as queries")
	verifyCmd.MarkFlagRequired("index")
}
