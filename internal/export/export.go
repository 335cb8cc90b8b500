package export

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/ArmanBehnam/clark/internal/model"
)

// Format is an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHTML Format = "html"
)

// ParseFormat accepts json, yaml or html.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatYAML, FormatHTML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format: %s", s)
	}
}

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("failed to load result schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("schema.json")
		if schemaErr != nil {
			schemaErr = fmt.Errorf("failed to compile result schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// Schema returns the embedded JSON Schema of the output contract.
func Schema() []byte {
	return append([]byte(nil), schemaJSON...)
}

// Validate checks encoded JSON against the output contract.
func Validate(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode result JSON: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("result does not match schema %s: %w", SchemaVersion, err)
	}
	return nil
}

// MarshalJSON encodes the result as indented contract JSON and validates it.
func MarshalJSON(res *model.ExtractionResult) ([]byte, error) {
	data, err := json.MarshalIndent(FromResult(res), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Encode writes the result to w in the given format.
func Encode(w io.Writer, res *model.ExtractionResult, format Format) error {
	switch format {
	case FormatJSON:
		data, err := MarshalJSON(res)
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	case FormatYAML:
		return encodeYAML(w, res)
	case FormatHTML:
		return RenderHTML(w, res)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// encodeYAML goes through the validated JSON so YAML keys match the contract.
func encodeYAML(w io.Writer, res *model.ExtractionResult) error {
	data, err := MarshalJSON(res)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(doc)
}

// OutputPath returns where a result for source is written in dir:
// <stem>_result.json, <stem>_result.yaml or <stem>_report.html.
func OutputPath(dir, source string, format Format) string {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	switch format {
	case FormatHTML:
		return filepath.Join(dir, stem+"_report.html")
	case FormatYAML:
		return filepath.Join(dir, stem+"_result.yaml")
	default:
		return filepath.Join(dir, stem+"_result.json")
	}
}

// WriteFile writes the result next to its siblings in dir and returns the path.
func WriteFile(dir string, res *model.ExtractionResult, format Format) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := OutputPath(dir, res.Filename, format)
	var buf bytes.Buffer
	if err := Encode(&buf, res, format); err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// BatchReport is the exported summary of a batch run.
type BatchReport struct {
	SchemaVersion string       `json:"schema_version"`
	TotalFiles    int          `json:"total_files"`
	Successful    int          `json:"successful"`
	Failed        int          `json:"failed"`
	Results       []Document   `json:"results"`
	Errors        []BatchError `json:"errors"`
}

// BatchError is one failed file.
type BatchError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// WriteBatchReport writes batch_report.json into dir.
func WriteBatchReport(dir string, rep BatchReport) (string, error) {
	rep.SchemaVersion = SchemaVersion
	if rep.Results == nil {
		rep.Results = []Document{}
	}
	if rep.Errors == nil {
		rep.Errors = []BatchError{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "batch_report.json")
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write batch report: %w", err)
	}
	return path, nil
}
