// Package output renders structured command results as JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvFormat selects the default structured output format.
const EnvFormat = "TASKMUX_OUTPUT_FORMAT"

// Format represents an output format.
type Format string

const (
	// FormatJSON is indented JSON.
	FormatJSON Format = "json"
	// FormatYAML is YAML, easier to read for nested inspection output.
	FormatYAML Format = "yaml"
)

func parse(v string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "json":
		return FormatJSON, true
	case "yaml", "yml":
		return FormatYAML, true
	}
	return "", false
}

// ResolveFormat determines the output format from flag value and environment.
// Priority: explicit flag > TASKMUX_OUTPUT_FORMAT > json.
func ResolveFormat(flagValue string) Format {
	if f, ok := parse(flagValue); ok {
		return f
	}
	if f, ok := parse(os.Getenv(EnvFormat)); ok {
		return f
	}
	return FormatJSON
}

// Validate reports an error for an unrecognized explicit format.
func Validate(flagValue string) error {
	if flagValue == "" {
		return nil
	}
	if _, ok := parse(flagValue); !ok {
		return fmt.Errorf("unknown format '%s' (want json or yaml)", flagValue)
	}
	return nil
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// WriteYAML writes v as YAML.
func WriteYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// Write renders v in format.
func Write(w io.Writer, v any, format Format) error {
	if format == FormatYAML {
		return WriteYAML(w, v)
	}
	return WriteJSON(w, v)
}

// Print writes v to stdout in the format chosen by flagValue and the environment.
func Print(v any, flagValue string) error {
	return Write(os.Stdout, v, ResolveFormat(flagValue))
}
