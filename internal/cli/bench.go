package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/golang/snappy"
	kflate "github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pierrec/xxHash/xxHash32"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/andybalholm/deflate"
	"github.com/andybalholm/deflate/compress"
	"github.com/andybalholm/deflate/envelope"
	"github.com/andybalholm/deflate/inflate"
	"github.com/andybalholm/deflate/internal/config"
)

type codec struct {
	newWriter func(w io.Writer, level deflate.Level) (io.WriteCloser, error)
	newReader func(r io.Reader) (io.ReadCloser, error)
}

var codecs = map[string]codec{
	"deflate": {
		newWriter: func(w io.Writer, level deflate.Level) (io.WriteCloser, error) {
			return compress.NewWriter(w, level)
		},
		newReader: func(r io.Reader) (io.ReadCloser, error) {
			return inflate.NewReader(r), nil
		},
	},
	"gzip": {
		newWriter: func(w io.Writer, level deflate.Level) (io.WriteCloser, error) {
			return envelope.NewGzipWriter(w, level, envelope.GzipHeader{})
		},
		newReader: func(r io.Reader) (io.ReadCloser, error) {
			return envelope.NewGzipReader(r)
		},
	},
	"zlib": {
		newWriter: func(w io.Writer, level deflate.Level) (io.WriteCloser, error) {
			return envelope.NewZlibWriter(w, level)
		},
		newReader: func(r io.Reader) (io.ReadCloser, error) {
			return envelope.NewZlibReader(r)
		},
	},
	"flate": {
		newWriter: func(w io.Writer, level deflate.Level) (io.WriteCloser, error) {
			return kflate.NewWriter(w, int(level))
		},
		newReader: func(r io.Reader) (io.ReadCloser, error) {
			return kflate.NewReader(r), nil
		},
	},
	"zstd": {
		newWriter: func(w io.Writer, level deflate.Level) (io.WriteCloser, error) {
			return zstd.NewWriter(w)
		},
		newReader: func(r io.Reader) (io.ReadCloser, error) {
			d, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return d.IOReadCloser(), nil
		},
	},
	"snappy": {
		newWriter: func(w io.Writer, level deflate.Level) (io.WriteCloser, error) {
			return snappy.NewBufferedWriter(w), nil
		},
		newReader: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(snappy.NewReader(r)), nil
		},
	},
	"lz4": {
		newWriter: func(w io.Writer, level deflate.Level) (io.WriteCloser, error) {
			return lz4.NewWriter(w), nil
		},
		newReader: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(lz4.NewReader(r)), nil
		},
	},
	"brotli": {
		newWriter: func(w io.Writer, level deflate.Level) (io.WriteCloser, error) {
			return brotli.NewWriterLevel(w, int(level)), nil
		},
		newReader: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(brotli.NewReader(r)), nil
		},
	},
}

// A BenchResult is the outcome of benchmarking one codec.
type BenchResult struct {
	Codec      string
	Size       int
	Compress   time.Duration
	Decompress time.Duration

	// Verified is set when the decompressed data hashes to the same
	// xxHash32 digest as the input.
	Verified bool
}

func digest(b []byte) uint32 {
	h := xxHash32.New(0)
	h.Write(b)
	return h.Sum32()
}

func roundTrip(c codec, data []byte, level deflate.Level) (compressed, decompressed []byte, ct, dt time.Duration, err error) {
	var buf bytes.Buffer
	start := time.Now()
	w, err := c.newWriter(&buf, level)
	if err != nil {
		return nil, nil, 0, 0, errors.Wrap(err, "unable to create writer")
	}
	if _, err := w.Write(data); err != nil {
		return nil, nil, 0, 0, errors.Wrap(err, "unable to compress")
	}
	if err := w.Close(); err != nil {
		return nil, nil, 0, 0, errors.Wrap(err, "unable to finish stream")
	}
	ct = time.Since(start)
	compressed = buf.Bytes()

	start = time.Now()
	r, err := c.newReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, nil, 0, 0, errors.Wrap(err, "unable to create reader")
	}
	decompressed, err = io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, nil, 0, 0, errors.Wrap(err, "unable to decompress")
	}
	dt = time.Since(start)
	return compressed, decompressed, ct, dt, nil
}

// RunBench compresses and decompresses data with each named codec,
// keeping the fastest of iterations runs. onRun is called after every run.
func RunBench(data []byte, names []string, level deflate.Level, iterations int, onRun func()) ([]BenchResult, error) {
	want := digest(data)
	results := make([]BenchResult, 0, len(names))
	for _, name := range names {
		c, ok := codecs[name]
		if !ok {
			return nil, errors.Errorf("unknown codec '%s'", name)
		}
		res := BenchResult{Codec: name, Verified: true}
		for i := 0; i < iterations; i++ {
			compressed, decompressed, ct, dt, err := roundTrip(c, data, level)
			if err != nil {
				return nil, errors.Wrapf(err, "%s", name)
			}
			if i == 0 || ct < res.Compress {
				res.Compress = ct
			}
			if i == 0 || dt < res.Decompress {
				res.Decompress = dt
			}
			res.Size = len(compressed)
			res.Verified = res.Verified && digest(decompressed) == want
			if onRun != nil {
				onRun()
			}
		}
		results = append(results, res)
	}
	return results, nil
}

func throughput(n int, d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(float64(n)/d.Seconds())) + "/s"
}

// Bench runs the bench subcommand.
func Bench(cfg *config.Config, log logrus.FieldLogger) error {
	cmd := cfg.CLI.Bench
	settings := cfg.TOML.Bench

	level, err := deflate.ParseLevel(settings.Level)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(cmd.Input)
	if err != nil {
		return errors.Wrapf(err, "unable to read '%s'", cmd.Input)
	}
	log.WithFields(logrus.Fields{
		"input":      cmd.Input,
		"size":       len(data),
		"codecs":     settings.Codecs,
		"iterations": settings.Iterations,
	}).Debug("benchmarking")

	onRun := func() {}
	if !cfg.CLI.Quiet {
		bar := pb.New(len(settings.Codecs) * settings.Iterations)
		bar.SetWriter(os.Stderr)
		bar.Start()
		defer bar.Finish()
		onRun = func() { bar.Increment() }
	}

	results, err := RunBench(data, settings.Codecs, level, settings.Iterations, onRun)
	if err != nil {
		return err
	}

	fmt.Fprintf(color.Output, "%-8s %10s %8s %14s %14s  %s\n", "codec", "size", "ratio", "compress", "decompress", "verified")
	for _, r := range results {
		ok := color.GreenString("ok")
		if !r.Verified {
			ok = color.RedString("MISMATCH")
		}
		ratio := 0.0
		if len(data) > 0 {
			ratio = float64(r.Size) / float64(len(data)) * 100
		}
		fmt.Fprintf(color.Output, "%-8s %10s %7.2f%% %14s %14s  %s\n",
			color.CyanString("%-8s", r.Codec),
			humanize.Bytes(uint64(r.Size)),
			ratio,
			throughput(len(data), r.Compress),
			throughput(len(data), r.Decompress),
			ok,
		)
	}
	for _, r := range results {
		if !r.Verified {
			return errors.Errorf("%s did not round-trip", r.Codec)
		}
	}
	return nil
}
