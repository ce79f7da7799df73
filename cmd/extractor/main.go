// Package main provides the extractor command-line tool: it runs the RPV
// pipeline offline over saved gazette pages and prints what it found.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"djeworker/internal/crawler"
	"djeworker/internal/export"
	"djeworker/internal/logger"
	"djeworker/internal/models"
	"djeworker/internal/normalizer"
	"djeworker/internal/parser"
	"djeworker/internal/pipeline"
	"djeworker/internal/validator"
	"djeworker/pkg/metadata"
)

type output struct {
	Report       *pipeline.Report     `json:"report"`
	Publications []models.Publication `json:"publicacoes"`
}

func main() {
	inputPath := flag.String("input", "", "Directory of page .txt files, or one file with form-feed page breaks")
	outputPath := flag.String("output", "", "Output file (default stdout)")
	format := flag.String("format", "md", "Output format: md or json")
	filed := flag.String("filed", "", "Filing date given to every record (YYYY-MM-DD, default today)")
	maxContinuation := flag.Int("max-continuation", 5, "Pages a record may spill into")
	sign := flag.Bool("sign", false, "Sign the markdown output")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	if *inputPath == "" {
		fmt.Println("Usage: extractor -input <dir|file> [-format md|json] [-output <file>] [-sign]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	filingDate := time.Now()

	if *filed != "" {
		t, err := time.Parse(time.DateOnly, *filed)
		if err != nil {
			log.Fatalf("❌ Invalid -filed date: %v\n", err)
		}

		filingDate = t
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	l := logger.NewLogger(*logLevel)

	source, err := crawler.NewFileSource(*inputPath)
	if err != nil {
		log.Fatalf("❌ Error reading pages: %v\n", err)
	}

	fmt.Fprintf(os.Stderr, "📂 Reading: %s (%d pages)\n", *inputPath, source.Len())

	keywords, err := validator.NewKeywordValidator(nil)
	if err != nil {
		log.Fatalf("❌ Error creating keyword validator: %v\n", err)
	}

	sink := pipeline.NewMemorySink()

	orch := pipeline.NewOrchestrator(pipeline.Components{
		Source:    source,
		Anchors:   parser.DefaultAnchors(),
		Processor: normalizer.NewProcessor(parser.NewExtractor(l)),
		Keywords:  keywords,
		Sink:      sink,
	}, *maxContinuation, l, pipeline.WithFilingDate(func() time.Time { return filingDate }))

	report, err := orch.Run(ctx, source.First())
	if err != nil {
		log.Fatalf("❌ Run failed: %v\n", err)
	}

	fmt.Fprintf(os.Stderr, "✅ %s\n", report)

	var out io.Writer = os.Stdout

	if *outputPath != "" {
		f, err := os.Create(*outputPath)
		if err != nil {
			log.Fatalf("❌ Error creating output: %v\n", err)
		}
		defer f.Close()

		out = f
	}

	pubs := sink.Publications()

	switch *format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		if err := enc.Encode(output{Report: report, Publications: pubs}); err != nil {
			log.Fatalf("❌ Error writing JSON: %v\n", err)
		}
	case "md":
		md, err := export.MarkdownReport(pubs, metadata.Metadata{
			Source:    *inputPath,
			Validated: report.Rejected == 0,
		})
		if err != nil {
			log.Fatalf("❌ Error building report: %v\n", err)
		}

		if !*sign {
			_, md = metadata.Extract(md)
		}

		fmt.Fprintln(out, md)
	default:
		log.Fatalf("❌ Unknown format %q\n", *format)
	}
}
