package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Sternrassler/resilient-fetch/pkg/batch"
	"github.com/Sternrassler/resilient-fetch/pkg/htmldoc"
	"github.com/spf13/cobra"
)

type statusRecord struct {
	URL    string `json:"url"`
	Exists bool   `json:"exists"`
}

type pageRecord struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

type selectionRecord struct {
	URL    string   `json:"url"`
	Values []string `json:"values"`
}

// render shapes batch results for JSON output. Without --with-urls the output
// is a bare array in completion order.
func render(results []batch.Result, variant batch.Variant, opts options) (any, error) {
	switch variant {
	case batch.VariantStatus:
		if opts.WithURLs {
			records := make([]statusRecord, 0, len(results))
			for _, r := range results {
				records = append(records, statusRecord{URL: r.URL, Exists: r.Exists})
			}
			return records, nil
		}
		flags := make([]bool, 0, len(results))
		for _, r := range results {
			flags = append(flags, r.Exists)
		}
		return flags, nil

	case batch.VariantContent:
		if opts.Select != "" {
			return renderSelections(results, opts)
		}
		if opts.WithURLs {
			records := make([]pageRecord, 0, len(results))
			for _, r := range results {
				records = append(records, pageRecord{URL: r.URL, Content: r.Page.Text()})
			}
			return records, nil
		}
		texts := make([]string, 0, len(results))
		for _, r := range results {
			texts = append(texts, r.Page.Text())
		}
		return texts, nil

	default:
		return nil, fmt.Errorf("unknown variant %v", variant)
	}
}

func renderSelections(results []batch.Result, opts options) (any, error) {
	records := make([]selectionRecord, 0, len(results))
	for _, r := range results {
		values, err := htmldoc.Select(r.Page, opts.Select, opts.Attr)
		if err != nil {
			return nil, fmt.Errorf("extract from %s: %w", r.Page.URL, err)
		}
		records = append(records, selectionRecord{URL: r.URL, Values: values})
	}

	if opts.WithURLs {
		return records, nil
	}
	bare := make([][]string, 0, len(records))
	for _, rec := range records {
		bare = append(bare, rec.Values)
	}
	return bare, nil
}

func writeOutput(cmd *cobra.Command, opts options, out any) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	data = append(data, '\n')

	if opts.Stdout {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}

	if err := os.WriteFile(opts.OutputFile, data, 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return nil
}
