package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/abdullahx404/startsmart/internal/report"
)

// render-report converts a markdown suitability report (from the
// recommend CLI or the history store) into a PDF via headless Chromium.
func main() {
	in := flag.String("in", "-", "markdown input file, - for stdin")
	out := flag.String("out", "report.pdf", "PDF output path")
	timeout := flag.Duration("timeout", 30*time.Second, "render timeout")
	flag.Parse()

	var markdown []byte
	var err error
	if *in == "-" {
		markdown, err = io.ReadAll(os.Stdin)
	} else {
		markdown, err = os.ReadFile(*in)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		os.Exit(1)
	}

	renderer := report.NewPDFRenderer(*timeout)
	pdf, err := renderer.Render(context.Background(), string(markdown))
	if err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, pdf, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(pdf))
}
