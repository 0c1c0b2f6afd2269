package report

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// JSONWriter writes the report model as JSON.
type JSONWriter struct {
	Indent string
}

// Write implements Writer.
func (j JSONWriter) Write(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", j.Indent)
	return enc.Encode(r)
}

// YAMLWriter writes the report model as YAML.
type YAMLWriter struct {
	Indent int
}

// Write implements Writer.
func (y YAMLWriter) Write(w io.Writer, r *Report) error {
	enc := yaml.NewEncoder(w)
	if y.Indent > 0 {
		enc.SetIndent(y.Indent)
	}
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}
