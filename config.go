// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

// OutputConfig is the `output` table of a bindscrape.yaml (spec §6).
type OutputConfig struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
}

// PartitionConfig is one `partition` entry (spec §6).
type PartitionConfig struct {
	Namespace string   `yaml:"namespace"`
	Library   string   `yaml:"library"`
	Headers   []string `yaml:"headers"`
	Traverse  []string `yaml:"traverse"`

	// ClangArgs accepts either a YAML sequence of tokens or a single shell
	// string tokenized with shlex (spec §6.1 resolution of the config's
	// "tokens passed verbatim to the C front-end" language).
	ClangArgs rawClangArgs `yaml:"clang_args"`
}

// TraverseFiles returns the set of source paths whose declarations this
// partition emits: Traverse if given, else Headers (spec §6 default rule).
func (p PartitionConfig) TraverseFiles() []string {
	if len(p.Traverse) > 0 {
		return p.Traverse
	}
	return p.Headers
}

// WrapperHeader returns the stable synthesized translation-unit path for a
// multi-header partition (spec §6 "Wrapper-header protocol"): derived from
// the namespace so repeated runs reuse the same name.
func (p PartitionConfig) WrapperHeader() string {
	return filepath.Join(os.TempDir(), "bindscrape-"+p.Namespace+".wrapper.h")
}

// ImportedType is one entry of a TypeImportConfig's `types` list: a bare
// name to register, seeded under the import's namespace.
type ImportedType = string

// TypeImportConfig is one `type_import` entry (spec §6).
type TypeImportConfig struct {
	WinMD    string   `yaml:"winmd"`
	Assembly string   `yaml:"assembly"`
	Version  string   `yaml:"version"`
	Types    []string `yaml:"types"`
	// Namespace is the namespace prefix under which types are enumerated
	// from the external assembly (spec §4.2). Optional; when empty no
	// namespace filtering is applied. When Types is non-empty only the
	// names it lists are registered; when it is empty every enumerated
	// type is.
	Namespace string `yaml:"namespace"`
}

// Config is the full deserialized bindscrape.yaml (spec §6).
type Config struct {
	Output             OutputConfig        `yaml:"output"`
	Partitions         []PartitionConfig   `yaml:"partition"`
	NamespaceOverrides map[string]string   `yaml:"namespace_overrides"`
	TypeImports        []TypeImportConfig  `yaml:"type_import"`
}

// OutputFile returns the configured output path, defaulting to
// "output.winmd" when unset (spec §6).
func (c Config) OutputFile() string {
	if c.Output.File == "" {
		return "output.winmd"
	}
	return c.Output.File
}

// LoadConfig reads and parses a bindscrape.yaml from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrConfigLoad, path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes in memory; split out of LoadConfig so
// both the CLI and the fuzz target (fuzz.go) can exercise it without
// touching the filesystem.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigLoad, err)
	}
	if cfg.Output.Name == "" {
		return Config{}, fmt.Errorf("%w: output.name is required", ErrConfigLoad)
	}
	return cfg, nil
}

// rawClangArgs unmarshals either a YAML sequence of strings or a single
// shell-quoted string (tokenized via github.com/google/shlex), so users can
// write clang_args as a list or as "-I/usr/include -DFOO=1".
type rawClangArgs []string

func (r *rawClangArgs) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*r = list
		return nil
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		tokens, err := shlex.Split(s)
		if err != nil {
			return fmt.Errorf("clang_args: %w", err)
		}
		*r = tokens
		return nil
	default:
		return fmt.Errorf("clang_args: unsupported YAML node kind %v", value.Kind)
	}
}
