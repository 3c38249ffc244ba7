// Package source discovers the input files behind each configured table
// role and packages them as immutable datasets. Discovery never fails a run:
// roles without usable files are left out and logged, odd files inside a
// shard directory are excluded and logged.
package source

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"nbaload/internal/config"
)

// Kind describes how a dataset's files were grouped.
type Kind string

const (
	KindSingleFile   Kind = "single_file"
	KindShardedByKey Kind = "sharded_by_key"
	KindJSONArray    Kind = "json_array"
)

// ShardFile is one input file. Value carries the shard key value derived
// from the file stem (lowercased) when the dataset has a shard key.
type ShardFile struct {
	Path  string
	Value string
}

// ShardKeySpec names the column injected into sharded datasets.
type ShardKeySpec struct {
	Column string
}

// Dataset is one table role's resolved input. Constructed once at discovery
// and immutable afterwards; the analyzer samples it, the loader reads it in
// full.
type Dataset struct {
	TableName string
	Kind      Kind
	Format    string // "csv" or "json"
	Files     []ShardFile
	ShardKey  *ShardKeySpec
}

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Printf(format string, v ...any)
}

// Discover resolves each configured table role to a dataset, preserving the
// configured order. Roles with no usable input are absent from the result.
func Discover(root string, tables []config.Table, log Logger) []Dataset {
	out := make([]Dataset, 0, len(tables))
	for _, t := range tables {
		if ds, ok := discoverTable(root, t, log); ok {
			out = append(out, ds)
		}
	}
	return out
}

func discoverTable(root string, t config.Table, log Logger) (Dataset, bool) {
	switch t.Source.Kind {
	case config.SourceFile:
		return discoverFile(root, t, log)
	case config.SourceShardDir:
		return discoverShardDir(root, t, log)
	case config.SourceLatest:
		return discoverLatest(root, t, log)
	default:
		logf(log, "stage=discover table=%s skipped: unsupported source kind %q", t.Name, t.Source.Kind)
		return Dataset{}, false
	}
}

func discoverFile(root string, t config.Table, log Logger) (Dataset, bool) {
	path := resolve(root, t.Source.Path)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		logf(log, "stage=discover table=%s skipped: no input at %s", t.Name, path)
		return Dataset{}, false
	}
	ds := Dataset{
		TableName: t.Name,
		Kind:      kindForFormat(t.Source.Format),
		Format:    t.Source.Format,
		Files:     []ShardFile{{Path: path}},
	}
	logf(log, "stage=discover table=%s files=1", t.Name)
	return ds, true
}

func discoverShardDir(root string, t config.Table, log Logger) (Dataset, bool) {
	dir := resolve(root, t.Source.Path)
	matches, err := filepath.Glob(filepath.Join(dir, t.Source.Pattern))
	if err != nil || len(matches) == 0 {
		logf(log, "stage=discover table=%s skipped: no files matching %s in %s", t.Name, t.Source.Pattern, dir)
		return Dataset{}, false
	}
	sort.Strings(matches)

	files := make([]ShardFile, 0, len(matches))
	for _, m := range matches {
		stem := fileStem(m)
		if t.Source.StemRule == config.StemSeasonRange && !isSeasonRangeStem(stem) {
			logf(log, "stage=discover table=%s exclude=%s reason=not a season range", t.Name, filepath.Base(m))
			continue
		}
		f := ShardFile{Path: m}
		if t.Source.ShardKey != "" {
			f.Value = strings.ToLower(stem)
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		logf(log, "stage=discover table=%s skipped: no valid files in %s", t.Name, dir)
		return Dataset{}, false
	}

	ds := Dataset{
		TableName: t.Name,
		Kind:      KindShardedByKey,
		Format:    t.Source.Format,
		Files:     files,
	}
	if t.Source.ShardKey != "" {
		ds.ShardKey = &ShardKeySpec{Column: t.Source.ShardKey}
	}
	logf(log, "stage=discover table=%s files=%d", t.Name, len(files))
	return ds, true
}

func discoverLatest(root string, t config.Table, log Logger) (Dataset, bool) {
	dir := resolve(root, t.Source.Path)
	matches, err := filepath.Glob(filepath.Join(dir, t.Source.Pattern))
	if err != nil || len(matches) == 0 {
		logf(log, "stage=discover table=%s skipped: no files matching %s in %s", t.Name, t.Source.Pattern, dir)
		return Dataset{}, false
	}
	sort.Strings(matches)

	latest := ""
	var latestMod int64
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			logf(log, "stage=discover table=%s exclude=%s reason=%v", t.Name, filepath.Base(m), err)
			continue
		}
		if mod := info.ModTime().UnixNano(); latest == "" || mod > latestMod {
			latest = m
			latestMod = mod
		}
	}
	if latest == "" {
		logf(log, "stage=discover table=%s skipped: no readable files in %s", t.Name, dir)
		return Dataset{}, false
	}

	ds := Dataset{
		TableName: t.Name,
		Kind:      kindForFormat(t.Source.Format),
		Format:    t.Source.Format,
		Files:     []ShardFile{{Path: latest}},
	}
	logf(log, "stage=discover table=%s files=1 latest=%s", t.Name, filepath.Base(latest))
	return ds, true
}

// isSeasonRangeStem reports whether a file stem looks like "2024-25": two
// integer parts joined by a single dash.
func isSeasonRangeStem(stem string) bool {
	parts := strings.Split(stem, "-")
	if len(parts) != 2 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			return false
		}
	}
	return true
}

func kindForFormat(format string) Kind {
	if format == "json" {
		return KindJSONArray
	}
	return KindSingleFile
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func logf(log Logger, format string, v ...any) {
	if log != nil {
		log.Printf(format, v...)
	}
}
