// Package cfgfile loads and saves configuration files in JSON or TOML.
package cfgfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Format is a configuration file format.
type Format uint8

const (
	FormatJSON Format = iota
	FormatTOML
)

// FormatOf returns the format of the file at path, chosen by its extension.
// Files without a ".toml" extension are JSON.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatJSON
}

// Open opens the file at path and decodes it into v.
//
// Unknown fields in the file will cause an error.
func Open(path string, v any) error {
	switch FormatOf(path) {
	case FormatTOML:
		md, err := toml.DecodeFile(path, v)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys: %v", undecoded)
		}
		return nil

	default:
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		dec := json.NewDecoder(f)
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	}
}

// Save encodes v and saves it to the file at path.
func Save(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch FormatOf(path) {
	case FormatTOML:
		enc := toml.NewEncoder(f)
		enc.Indent = "    "
		return enc.Encode(v)

	default:
		enc := json.NewEncoder(f)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "    ")
		return enc.Encode(v)
	}
}
