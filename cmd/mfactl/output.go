package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"mfa-orphans/internal/converge"
)

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// progressPrinter reports outstanding rows on stderr every few tries so stdout stays parseable.
func progressPrinter(every int) converge.Progress {
	return func(attempt int, pending []converge.Row) {
		if attempt%every != 0 || len(pending) == 0 {
			return
		}
		fmt.Fprintf(os.Stderr, "try %d: %d pending (%s)\n", attempt, len(pending), summarizeRows(pending, 5))
	}
}

func summarizeRows(rows []converge.Row, limit int) string {
	parts := make([]string, 0, limit)
	for i, r := range rows {
		if i == limit {
			parts = append(parts, fmt.Sprintf("+%d more", len(rows)-limit))
			break
		}
		parts = append(parts, r.Subject+"/"+string(r.Dimension))
	}
	return strings.Join(parts, ", ")
}
