// Package cli implements the deflate command's subcommands.
package cli

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
)

var extensions = map[string]string{
	"raw":  ".deflate",
	"gzip": ".gz",
	"zlib": ".zz",
}

// openInput opens name for reading; "-" is stdin. The size is -1 when it is
// not known.
func openInput(name string) (io.ReadCloser, int64, error) {
	if name == "-" || name == "" {
		return io.NopCloser(os.Stdin), -1, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "unable to open '%s'", name)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, errors.Wrapf(err, "unable to stat '%s'", name)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, errors.Errorf("'%s' is a directory", name)
	}
	return f, info.Size(), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// createOutput creates name for writing; "-" is stdout. Existing files are
// only replaced when force is set.
func createOutput(name string, force bool) (io.WriteCloser, error) {
	if name == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(name, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.Errorf("'%s' already exists; use --force to overwrite it", name)
		}
		return nil, errors.Wrapf(err, "unable to create '%s'", name)
	}
	return f, nil
}

func compressedName(input, format string) string {
	if input == "-" || input == "" {
		return "-"
	}
	return input + extensions[format]
}

// decompressedName strips a known extension, or appends ".out".
func decompressedName(input string) string {
	if input == "-" || input == "" {
		return "-"
	}
	ext := filepath.Ext(input)
	switch strings.ToLower(ext) {
	case ".gz", ".zz", ".zlib", ".deflate", ".raw", ".z":
		return strings.TrimSuffix(input, ext)
	}
	return input + ".out"
}

// formatFromName guesses the container format from a file extension.
func formatFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz", ".tgz":
		return "gzip"
	case ".zz", ".zlib", ".z":
		return "zlib"
	case ".deflate", ".raw":
		return "raw"
	}
	return ""
}

// countingWriter counts the bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// progress wraps r in a progress bar on stderr. The bar is skipped when
// quiet is set or the size is unknown; the returned func stops it.
func progress(r io.Reader, size int64, quiet bool) (io.Reader, func()) {
	if quiet || size <= 0 {
		return r, func() {}
	}
	bar := pb.New64(size)
	bar.Set(pb.Bytes, true)
	bar.SetWriter(os.Stderr)
	bar.Start()
	return bar.NewProxyReader(r), func() { bar.Finish() }
}
