package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/atlasgraph/atlas"
	"github.com/atlasgraph/atlas/pkg/config"
	"github.com/atlasgraph/atlas/pkg/logger"
	"github.com/atlasgraph/atlas/pkg/patterns"
	"github.com/atlasgraph/atlas/pkg/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Ingest documents into the knowledge graph",
	Long: `Ingest one or more text files, or stdin when no files are given.
Each line of input is treated as one document.`,
	RunE: runIngest,
}

var (
	ingestSourceRef string
	ingestDomain    string
	ingestQuality   float64
)

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestSourceRef, "source-ref", "", "Provenance reference recorded with extracted entities")
	ingestCmd.Flags().StringVar(&ingestDomain, "domain", "", "Domain tag for extracted entities")
	ingestCmd.Flags().Float64Var(&ingestQuality, "quality", 0.5, "Source quality score, 0 to 1")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewDefaultLogger(logger.ParseLevel(cfg.Log.Level))
	engine, err := atlas.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer engine.Close()

	docs, err := readDocuments(args)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents to ingest")
	}

	ctx := context.WithValue(context.Background(), types.ContextKeyRequestSource, "cli")
	results, errs := engine.IngestBatch(ctx, docs)

	created, updated, failed := 0, 0, 0
	for i, result := range results {
		if errs[i] != nil {
			failed++
			log.Warn("document failed", "index", i, "error", errs[i])
			continue
		}
		created += len(result.Created)
		updated += len(result.Updated)
	}

	fmt.Printf("Ingested %d documents: %d entities created, %d updated, %d failed\n",
		len(docs), created, updated, failed)
	if failed > 0 {
		return fmt.Errorf("%d documents failed", failed)
	}
	return nil
}

func readDocuments(paths []string) ([]patterns.Document, error) {
	source := types.SourceMetadata{
		SourceRef: ingestSourceRef,
		Domain:    ingestDomain,
		Quality:   ingestQuality,
		Timestamp: time.Now().UTC(),
	}

	var docs []patterns.Document
	appendLines := func(scanner *bufio.Scanner, ref string) error {
		for scanner.Scan() {
			line := scanner.Text()
			if len(line) == 0 {
				continue
			}
			meta := source
			if meta.SourceRef == "" {
				meta.SourceRef = ref
			}
			docs = append(docs, patterns.Document{Text: line, Source: meta})
		}
		return scanner.Err()
	}

	if len(paths) == 0 {
		if err := appendLines(bufio.NewScanner(os.Stdin), "stdin"); err != nil {
			return nil, err
		}
		return docs, nil
	}

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		err = appendLines(bufio.NewScanner(f), path)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	return docs, nil
}
