package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/gakumon/internal/models"
)

func sampleRetrieve() *models.RetrieveResponse {
	return &models.RetrieveResponse{
		Query:     "what is atp",
		QueryTime: 42,
		Passages: []*models.Passage{
			{Rank: 1, Position: 7, Score: 0.91, Text: "atp stores energy"},
			{Rank: 2, Position: 2, Score: 0.5, Text: strings.Repeat("long ", 200)},
		},
	}
}

func TestWriteRetrieveResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRetrieveResults(&buf, sampleRetrieve(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.RetrieveResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Query != "what is atp" || len(decoded.Passages) != 2 || decoded.Passages[0].Position != 7 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteRetrieveResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRetrieveResults(&buf, sampleRetrieve(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Retrieved 2 passages in 42ms", "[1] Score: 0.9100 | Chunk #7", "atp stores energy", "..."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteAnswer(t *testing.T) {
	resp := &models.AskResponse{
		Question: "what is atp",
		Answer:   "ATP is the energy currency of the cell.",
		Model:    "mistralai/mistral-7b-instruct",
		Passages: sampleRetrieve().Passages[:1],
	}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"ATP is the energy currency", "Supporting evidence", "atp stores energy"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteAddResult(t *testing.T) {
	tests := []struct {
		name string
		resp *models.AddResponse
		want string
	}{
		{"added", &models.AddResponse{Document: &models.Document{Title: "notes.md", ChunkCount: 3}, Size: 10}, "notes.md added: 3 chunks, index now holds 10"},
		{"skipped", &models.AddResponse{Document: &models.Document{ID: "text:1"}, Skipped: true, Reason: "duplicate content"}, "text:1 skipped (duplicate content)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteAddResult(&buf, tt.resp, OutputText); err != nil {
				t.Fatal(err)
			}
			if got := strings.TrimSpace(buf.String()); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteStatus(t *testing.T) {
	var buf bytes.Buffer
	st := &models.StatusResponse{State: "ready", Chunks: 12, Dimensions: 384, Model: "onnx:model", IndexType: "flat", DiskUsageBytes: 2048}
	if err := WriteStatus(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Chunks:      12") || !strings.Contains(buf.String(), "2.0 KiB") {
		t.Errorf("unexpected status output:\n%s", buf.String())
	}
}

func TestWriteRebuild(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.RebuildResponse{Status: "rebuilt", Chunks: 40, Dimensions: 256, TookMS: 15}
	if err := WriteRebuild(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "rebuilt: 40 chunks, 256 dimensions in 15ms\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
