package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/andybalholm/deflate"
	"github.com/andybalholm/deflate/compress"
	"github.com/andybalholm/deflate/envelope"
	"github.com/andybalholm/deflate/internal/config"
)

// flushWriter is what every format's writer provides.
type flushWriter interface {
	io.Writer
	Flush() error
	Close() error
}

// newCompressWriter returns a writer for format that compresses to w.
func newCompressWriter(w io.Writer, format string, level deflate.Level, h envelope.GzipHeader, opts ...compress.Option) (flushWriter, error) {
	switch format {
	case "raw":
		return compress.NewWriter(w, level, opts...)
	case "gzip":
		return envelope.NewGzipWriter(w, level, h, opts...)
	case "zlib":
		return envelope.NewZlibWriter(w, level, opts...)
	}
	return nil, errors.Errorf("unknown format '%s'", format)
}

// Compress runs the compress subcommand.
func Compress(cfg *config.Config, log logrus.FieldLogger) error {
	cmd := cfg.CLI.Compress
	settings := cfg.TOML.Compress

	level, err := deflate.ParseLevel(settings.Level)
	if err != nil {
		return err
	}
	blockType, err := deflate.ParseBlockType(settings.BlockType)
	if err != nil {
		return err
	}

	in, size, err := openInput(cmd.Input)
	if err != nil {
		return err
	}
	defer in.Close()

	outName := cmd.Output
	if outName == "" {
		outName = compressedName(cmd.Input, settings.Format)
	}
	out, err := createOutput(outName, cmd.Force)
	if err != nil {
		return err
	}
	defer out.Close()

	h := envelope.GzipHeader{}
	if cmd.Input != "-" {
		h.Name = filepath.Base(cmd.Input)
		h.ModTime = time.Now()
	}

	log.WithFields(logrus.Fields{
		"input":      cmd.Input,
		"output":     outName,
		"level":      level,
		"format":     settings.Format,
		"block_type": blockType,
	}).Debug("compressing")

	counter := &countingWriter{w: out}
	w, err := newCompressWriter(counter, settings.Format, level, h,
		compress.WithBlockType(blockType),
		compress.WithLogger(log),
	)
	if err != nil {
		return errors.Wrap(err, "unable to create compressor")
	}

	src, done := progress(in, size, cfg.CLI.Quiet)
	start := time.Now()
	read, err := copyWithSync(w, src, settings.BufferSize, settings.SyncEvery)
	done()
	if err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "unable to finish stream")
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "unable to close '%s'", outName)
	}

	if !cfg.CLI.Quiet {
		printSummary("compressed", read, counter.n, time.Since(start))
	}
	return nil
}

// copyWithSync copies src to w, calling w.Flush after every syncEvery bytes
// when syncEvery is positive.
func copyWithSync(w flushWriter, src io.Reader, bufSize int, syncEvery int64) (int64, error) {
	buf := make([]byte, bufSize)
	var total, sinceSync int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, errors.Wrap(werr, "unable to write compressed data")
			}
			total += int64(n)
			sinceSync += int64(n)
			if syncEvery > 0 && sinceSync >= syncEvery {
				if ferr := w.Flush(); ferr != nil {
					return total, errors.Wrap(ferr, "unable to flush")
				}
				sinceSync = 0
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, errors.Wrap(err, "unable to read input")
		}
	}
}

func printSummary(verb string, in, out int64, elapsed time.Duration) {
	ratio := 0.0
	if in > 0 {
		ratio = float64(out) / float64(in) * 100
	}
	fmt.Fprintf(color.Error, "%s %s -> %s (%s) in %s\n",
		verb,
		color.CyanString(humanize.Bytes(uint64(in))),
		color.CyanString(humanize.Bytes(uint64(out))),
		color.GreenString("%.1f%%", ratio),
		elapsed.Round(time.Millisecond),
	)
}
