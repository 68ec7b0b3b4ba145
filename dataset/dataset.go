// Package dataset loads conversation datasets from JSONL, JSON, and
// Parquet payloads stored locally, behind a URL, or in S3, and expands
// multi-turn records into individually evaluable items.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Turn is one utterance in a recorded conversation.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Meta carries per-record metadata. MetaDescription, when present,
// becomes the system prompt for every item expanded from the record.
type Meta struct {
	MetaDescription string `json:"meta_description"`
}

// ConversationRecord is one dataset entry: an ordered multi-turn
// exchange plus metadata.
type ConversationRecord struct {
	Turns []Turn `json:"turns"`
	Meta  Meta   `json:"meta"`
}

// Format identifies a dataset serialization.
type Format string

const (
	FormatJSONL   Format = "jsonl"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// DetectFormat infers the format from a file path's extension,
// defaulting to JSONL.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".parquet":
		return FormatParquet
	default:
		return FormatJSONL
	}
}

// Parser decodes a dataset payload into conversation records.
type Parser interface {
	Parse(r io.Reader) ([]ConversationRecord, error)
}

// NewParser creates a parser for the given format.
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatJSONL:
		return &JSONLParser{}, nil
	case FormatJSON:
		return &JSONParser{}, nil
	case FormatParquet:
		return &ParquetParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported dataset format: %v", format)
	}
}

// JSONLParser parses one JSON record per line.
type JSONLParser struct{}

func (p *JSONLParser) Parse(r io.Reader) ([]ConversationRecord, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var records []ConversationRecord
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec ConversationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse record on line %d: %w", lineNum, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading dataset: %w", err)
	}
	return records, nil
}

// JSONParser parses a JSON array of records.
type JSONParser struct{}

func (p *JSONParser) Parse(r io.Reader) ([]ConversationRecord, error) {
	var records []ConversationRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse JSON array: %w", err)
	}
	return records, nil
}

// ParquetParser parses Parquet row groups into records. Rows are read
// generically and bridged through JSON so nested turn groups map onto
// the record shape.
type ParquetParser struct{}

func (p *ParquetParser) Parse(r io.Reader) ([]ConversationRecord, error) {
	// parquet-go needs an io.ReaderAt, so buffer the payload.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet data: %w", err)
	}

	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	reader := parquet.NewGenericReader[map[string]any](file)
	defer reader.Close()

	var records []ConversationRecord
	buffer := make([]map[string]any, 100)
	for {
		n, err := reader.Read(buffer)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}

		for j := 0; j < n; j++ {
			rec, convErr := rowToRecord(buffer[j])
			if convErr != nil {
				return nil, convErr
			}
			records = append(records, rec)
		}

		if err == io.EOF || n == 0 {
			break
		}
	}
	return records, nil
}

func rowToRecord(row map[string]any) (ConversationRecord, error) {
	// Some exporters store the whole record as a JSON string column.
	if s, ok := row["turns"].(string); ok {
		var rec ConversationRecord
		if err := json.Unmarshal([]byte(s), &rec.Turns); err != nil {
			return ConversationRecord{}, fmt.Errorf("failed to parse turns column: %w", err)
		}
		if m, ok := row["meta"].(string); ok {
			_ = json.Unmarshal([]byte(m), &rec.Meta)
		}
		return rec, nil
	}

	b, err := json.Marshal(row)
	if err != nil {
		return ConversationRecord{}, fmt.Errorf("failed to convert parquet row: %w", err)
	}
	var rec ConversationRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return ConversationRecord{}, fmt.Errorf("failed to decode parquet row: %w", err)
	}
	return rec, nil
}
