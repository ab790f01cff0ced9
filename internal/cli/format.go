package cli

import (
	"encoding/json"
	"fmt"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func addFormatFlag(fs *flag.FlagSet) {
	fs.String("format", formatText, "Output format (text|json|yaml)")
}

func formatFlag(fs *flag.FlagSet) (string, error) {
	format, _ := fs.GetString("format")

	switch format {
	case formatText, formatJSON, formatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("invalid --format %q: want text, json or yaml", format)
	}
}

// writeStructured encodes v to stdout as JSON or YAML.
func writeStructured(o *IO, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(o)
		enc.SetIndent("", "  ")

		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(o)
		enc.SetIndent(2)

		err := enc.Encode(v)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return enc.Close()
	default:
		return fmt.Errorf("no structured encoder for %q", format)
	}
}
