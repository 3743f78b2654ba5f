// Package cli formats command output for the gakumon CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/gakumon/internal/models"
	"github.com/hyperjump/gakumon/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const passagePreview = 400

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

// WriteRetrieveResults writes retrieved passages to w in the given format.
func WriteRetrieveResults(w io.Writer, resp *models.RetrieveResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\nRetrieved %d passages in %dms\n\n", len(resp.Passages), resp.QueryTime)
	writePassages(w, resp.Passages)
	return nil
}

// WriteAnswer writes a generated answer followed by its supporting passages.
func WriteAnswer(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\nAnswer (%s, %dms)\n\n%s\n\n", resp.Model, resp.QueryTime, resp.Answer)
	if len(resp.Passages) > 0 {
		fmt.Fprintln(w, "Supporting evidence")
		writePassages(w, resp.Passages)
	}
	return nil
}

// WriteAddResult writes the outcome of an add command.
func WriteAddResult(w io.Writer, resp *models.AddResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	name := resp.Document.Title
	if name == "" {
		name = resp.Document.ID
	}
	if resp.Skipped {
		fmt.Fprintf(w, "%s skipped (%s)\n", name, resp.Reason)
		return nil
	}
	fmt.Fprintf(w, "%s added: %d chunks, index now holds %d\n", name, resp.Document.ChunkCount, resp.Size)
	return nil
}

// WriteStatus writes engine and storage status.
func WriteStatus(w io.Writer, st *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "State:       %s\n", st.State)
	fmt.Fprintf(w, "Chunks:      %d\n", st.Chunks)
	fmt.Fprintf(w, "Dimensions:  %d\n", st.Dimensions)
	fmt.Fprintf(w, "Model:       %s\n", st.Model)
	fmt.Fprintf(w, "Index type:  %s\n", st.IndexType)
	fmt.Fprintf(w, "Documents:   %d\n", st.Documents)
	fmt.Fprintf(w, "Snapshot:    %s\n             %s\n", st.SnapshotIndex, st.SnapshotChunks)
	fmt.Fprintf(w, "Disk usage:  %s\n", FormatBytes(st.DiskUsageBytes))
	return nil
}

// WriteRebuild writes the outcome of a rebuild.
func WriteRebuild(w io.Writer, resp *models.RebuildResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "%s: %d chunks, %d dimensions in %dms\n", resp.Status, resp.Chunks, resp.Dimensions, resp.TookMS)
	return nil
}

func writePassages(w io.Writer, passages []*models.Passage) {
	for _, p := range passages {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "[%d] Score: %.4f | Chunk #%d\n", p.Rank, p.Score, p.Position)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(utils.CollapseSpace(p.Text), passagePreview))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
