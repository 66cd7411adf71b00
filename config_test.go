// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import (
	"errors"
	"testing"
)

func TestParseConfig_ClangArgsSequence(t *testing.T) {
	data := []byte(`
output:
  name: Contoso.Widgets
partition:
  - namespace: Contoso.Widgets
    library: widgets
    headers: ["widgets.h"]
    clang_args: ["-I/usr/include", "-DFOO=1"]
`)
	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	want := []string{"-I/usr/include", "-DFOO=1"}
	got := []string(cfg.Partitions[0].ClangArgs)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("ClangArgs = %v, want %v", got, want)
	}
}

func TestParseConfig_ClangArgsShellString(t *testing.T) {
	data := []byte(`
output:
  name: Contoso.Widgets
partition:
  - namespace: Contoso.Widgets
    headers: ["widgets.h"]
    clang_args: "-I/usr/include -DFOO=1"
`)
	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	want := []string{"-I/usr/include", "-DFOO=1"}
	got := []string(cfg.Partitions[0].ClangArgs)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("ClangArgs = %v, want %v", got, want)
	}
}

func TestParseConfig_MissingOutputNameIsError(t *testing.T) {
	data := []byte(`
partition:
  - namespace: NS
    headers: ["a.h"]
`)
	_, err := ParseConfig(data)
	if !errors.Is(err, ErrConfigLoad) {
		t.Fatalf("expected ErrConfigLoad, got %v", err)
	}
}

func TestParseConfig_MalformedYAMLNeverPanics(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("ParseConfig panicked on malformed input: %v", r)
		}
	}()
	if _, err := ParseConfig([]byte("not: valid: yaml: [")); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}

func TestPartitionConfig_TraverseFilesDefaultsToHeaders(t *testing.T) {
	pc := PartitionConfig{Headers: []string{"a.h", "b.h"}}
	got := pc.TraverseFiles()
	if len(got) != 2 || got[0] != "a.h" || got[1] != "b.h" {
		t.Fatalf("TraverseFiles() = %v, want headers", got)
	}
}

func TestPartitionConfig_TraverseFilesOverridesHeaders(t *testing.T) {
	pc := PartitionConfig{Headers: []string{"a.h"}, Traverse: []string{"b.h", "c.h"}}
	got := pc.TraverseFiles()
	if len(got) != 2 || got[0] != "b.h" || got[1] != "c.h" {
		t.Fatalf("TraverseFiles() = %v, want traverse list", got)
	}
}

func TestConfig_OutputFile_Default(t *testing.T) {
	var cfg Config
	if got, want := cfg.OutputFile(), "output.winmd"; got != want {
		t.Errorf("OutputFile() = %q, want %q", got, want)
	}
}

func TestConfig_OutputFile_Explicit(t *testing.T) {
	cfg := Config{Output: OutputConfig{File: "out/Contoso.Widgets.winmd"}}
	if got, want := cfg.OutputFile(), "out/Contoso.Widgets.winmd"; got != want {
		t.Errorf("OutputFile() = %q, want %q", got, want)
	}
}
