// Package measure builds a BundleStats value from a build output directory.
// Every file matching one of the patterns becomes a chunk with a single
// module; compressed sizes are computed in-process.
package measure

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/andybalholm/brotli"
	"github.com/gobwas/glob"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/bundlewatch/internal/stats"
)

// DefaultPatterns selects JavaScript and CSS output.
var DefaultPatterns = []string{"**/*.js", "**/*.css"}

// Options controls which files are measured and how.
type Options struct {
	// Patterns are gobwas/glob patterns matched against slash-separated
	// paths relative to the build directory.
	Patterns    []string
	Gzip        bool
	Brotli      bool
	Concurrency int
	Logger      *slog.Logger
	// Progress, if set, is called after each file is measured. It may be
	// called from several goroutines at once.
	Progress func(done, total int)
}

// Dir measures every matching file under dir.
func Dir(ctx context.Context, dir string, opts Options) (stats.BundleStats, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	matchers, err := compilePatterns(opts.Patterns)
	if err != nil {
		return stats.BundleStats{}, err
	}

	files, err := collect(dir, matchers)
	if err != nil {
		return stats.BundleStats{}, err
	}
	if len(files) == 0 {
		return stats.BundleStats{}, fmt.Errorf("no files matching %s in %s", strings.Join(patternsOrDefault(opts.Patterns), ", "), dir)
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	results := make([]fileSizes, len(files))
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sizes, err := measureFile(filepath.Join(dir, filepath.FromSlash(rel)), opts.Gzip, opts.Brotli)
			if err != nil {
				return fmt.Errorf("failed to measure %s: %w", rel, err)
			}
			results[i] = sizes
			if opts.Progress != nil {
				opts.Progress(int(done.Add(1)), len(files))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats.BundleStats{}, err
	}

	var bs stats.BundleStats
	bs.Chunks = make([]stats.Chunk, len(files))
	for i, rel := range files {
		r := results[i]
		bs.TotalSize += r.raw
		bs.GzipSize += r.gzip
		bs.BrotliSize += r.brotli
		bs.Chunks[i] = stats.Chunk{
			Name:    rel,
			Size:    r.raw,
			Modules: []stats.Module{{Name: filepath.Base(rel), Size: r.raw, Path: rel}},
		}
	}

	logger.Debug("measured build output",
		"dir", dir,
		"files", len(files),
		"total_size", bs.TotalSize,
		"gzip_size", bs.GzipSize,
		"brotli_size", bs.BrotliSize)
	return bs, nil
}

type fileSizes struct {
	raw, gzip, brotli int64
}

func measureFile(path string, withGzip, withBrotli bool) (fileSizes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileSizes{}, err
	}

	sizes := fileSizes{raw: int64(len(data))}
	if withGzip {
		if sizes.gzip, err = gzipSize(data); err != nil {
			return fileSizes{}, err
		}
	}
	if withBrotli {
		if sizes.brotli, err = brotliSize(data); err != nil {
			return fileSizes{}, err
		}
	}
	return sizes, nil
}

func gzipSize(data []byte) (int64, error) {
	var cw countingWriter
	zw, err := gzip.NewWriterLevel(&cw, gzip.BestCompression)
	if err != nil {
		return 0, err
	}
	if _, err := zw.Write(data); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return cw.n, nil
}

func brotliSize(data []byte) (int64, error) {
	var cw countingWriter
	bw := brotli.NewWriterLevel(&cw, brotli.BestCompression)
	if _, err := bw.Write(data); err != nil {
		return 0, err
	}
	if err := bw.Close(); err != nil {
		return 0, err
	}
	return cw.n, nil
}

// countingWriter discards its input and counts the bytes.
type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// collect returns the matching files as sorted slash-separated relative paths.
func collect(dir string, matchers []glob.Glob) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read build directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if matchAny(matchers, rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk build directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func patternsOrDefault(patterns []string) []string {
	if len(patterns) == 0 {
		return DefaultPatterns
	}
	return patterns
}

// compilePatterns compiles each pattern with '/' as the separator. A
// leading "**/" also matches files at the top level.
func compilePatterns(patterns []string) ([]glob.Glob, error) {
	var out []glob.Glob
	for _, p := range patternsOrDefault(patterns) {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		out = append(out, g)
		if rest, ok := strings.CutPrefix(p, "**/"); ok {
			g, err := glob.Compile(rest, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
			}
			out = append(out, g)
		}
	}
	return out, nil
}

func matchAny(matchers []glob.Glob, path string) bool {
	for _, g := range matchers {
		if g.Match(path) {
			return true
		}
	}
	return false
}
