// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	mmap "github.com/edsrzf/mmap-go"
	"go.uber.org/zap"

	"github.com/bindscrape/winmd/internal/cast/ccparse"
)

// Run implements spec §2's driver orchestration: load config, parse and
// extract every partition sequentially (spec §5's single-AST-provider
// constraint), build and seed the type registry, deduplicate typedefs,
// emit the assembly, and write it atomically. log receives the same
// debug/info/warn trace points the reference implementation's
// extract.rs/lib.rs report through tracing, per SPEC_FULL.md §7.1.
func Run(configPath string, outputOverride string, dumpModel bool, log *zap.SugaredLogger) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	parser, err := ccparse.New()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	baseDir := filepath.Dir(configPath)

	var partitions []Partition
	var cleanups []string
	defer func() {
		for _, p := range cleanups {
			os.Remove(p)
		}
	}()

	for _, pc := range cfg.Partitions {
		log.Infow("extracting partition", "namespace", pc.Namespace, "headers", pc.Headers)

		for _, a := range pc.ClangArgs {
			if strings.HasPrefix(a, "-I") && len(a) > 2 {
				parser.AddIncludePath(resolvePath(baseDir, a[2:]))
			}
		}

		tuPath, cleanup, err := translationUnitFor(pc, baseDir)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrParseFailed, pc.Namespace, err)
		}
		if cleanup != "" {
			cleanups = append(cleanups, cleanup)
		}

		provider, err := parser.ParseFile(tuPath)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrParseFailed, pc.Namespace, err)
		}

		partition, warnings, err := ExtractPartition(provider, pc, baseDir)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrParseFailed, pc.Namespace, err)
		}
		logWarnings(log, pc.Namespace, warnings)
		log.Infow("partition extracted", "namespace", pc.Namespace,
			"structs", len(partition.Structs), "enums", len(partition.Enums),
			"functions", len(partition.Functions), "typedefs", len(partition.Typedefs),
			"constants", len(partition.Constants))

		partitions = append(partitions, partition)
	}

	if dumpModel {
		if err := dumpPartitions(partitions); err != nil {
			log.Warnw("failed to dump model", "error", err)
		}
	}

	registry := BuildTypeRegistry(partitions, cfg.NamespaceOverrides)

	for _, imp := range cfg.TypeImports {
		data, closeWinMD, err := openWinMD(resolvePath(baseDir, imp.WinMD))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrExternalWinMDRead, imp.WinMD, err)
		}
		types, err := ReadExternalTypes(data, imp.Namespace)
		closeWinMD()
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrExternalWinMDRead, imp.WinMD, err)
		}
		if len(imp.Types) > 0 {
			wanted := make(map[string]bool, len(imp.Types))
			for _, name := range imp.Types {
				wanted[name] = true
			}
			kept := types[:0]
			for _, t := range types {
				if wanted[t.Name] {
					kept = append(kept, t)
				}
			}
			types = kept
		}
		n := registry.SeedExternal(imp.Assembly, imp.Version, types)
		log.Infow("seeded external types", "winmd", imp.WinMD, "assembly", imp.Assembly, "registered", n, "available", len(types))
	}

	DedupTypedefs(partitions, registry)

	image, warnings, err := EmitAssembly(cfg.Output.Name, partitions, registry)
	if err != nil {
		return err
	}
	logWarnings(log, cfg.Output.Name, warnings)

	out := cfg.OutputFile()
	if outputOverride != "" {
		// spec §9 Open Question: the override is resolved against CWD, not
		// the config directory, matching the source's documented behavior.
		out = outputOverride
	}

	if err := writeAtomic(out, image); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOutputWrite, out, err)
	}
	log.Infow("wrote winmd", "path", out, "bytes", len(image))
	return nil
}

// dumpPartitions pretty-prints the extracted partitions as indented JSON,
// in the spirit of the teacher's cmd/pedumper.go prettyPrint helper
// (--dump-model, SPEC_FULL.md §6.3).
func dumpPartitions(partitions []Partition) error {
	buf, err := json.MarshalIndent(partitions, "", "\t")
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(buf, '\n'))
	return err
}

func logWarnings(log *zap.SugaredLogger, scope string, warnings []Warning) {
	for _, w := range warnings {
		log.Warnw(w.Message, "scope", scope, "decl", w.Decl, "kind", w.Kind.String())
	}
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}

// openWinMD memory-maps an external .winmd for ReadExternalTypes, the same
// way the teacher's file.go backs its PE parser with the file's own pages
// instead of copying it into a []byte (mmap.MMap's underlying type is
// []byte, so it's passed straight through). The returned func unmaps and
// closes the file; call it once the caller is done with data.
func openWinMD(path string) (data []byte, closeFn func(), err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return m, func() {
		m.Unmap()
		f.Close()
	}, nil
}

// translationUnitFor implements spec §6.2's wrapper-header protocol: a
// single-header partition parses directly, a multi-header partition gets a
// synthesized wrapper #include-ing every header in order, written at the
// partition's stable WrapperHeader path. cleanup is non-empty only when a
// wrapper was written, so the caller can best-effort remove it at run end
// (spec §5 "readable until process exit; cleanup is best-effort").
func translationUnitFor(pc PartitionConfig, baseDir string) (path string, cleanup string, err error) {
	headers := pc.Headers
	if len(headers) == 0 {
		return "", "", fmt.Errorf("partition %s has no headers", pc.Namespace)
	}
	if len(headers) == 1 {
		return resolvePath(baseDir, headers[0]), "", nil
	}

	wrapper := pc.WrapperHeader()
	var body strings.Builder
	for _, h := range headers {
		fmt.Fprintf(&body, "#include \"%s\"\n", resolvePath(baseDir, h))
	}
	if err := os.WriteFile(wrapper, []byte(body.String()), 0o644); err != nil {
		return "", "", fmt.Errorf("writing wrapper header: %w", err)
	}
	return wrapper, wrapper, nil
}

// writeAtomic implements spec §5's crash-safety requirement: build the
// full byte image in memory (already done by the caller), write it to a
// temporary sibling of the final path, then rename it into place, so a
// crash mid-write can never leave a corrupt .winmd where a previously-good
// one stood.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".winmd-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
