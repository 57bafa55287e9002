package cli

import (
	"bufio"
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/andybalholm/deflate"
	"github.com/andybalholm/deflate/envelope"
	"github.com/andybalholm/deflate/inflate"
	"github.com/andybalholm/deflate/internal/config"
)

// sniffFormat looks at the first bytes of a stream: the gzip magic number,
// then a valid zlib header, and otherwise raw DEFLATE.
func sniffFormat(r *bufio.Reader) string {
	b, _ := r.Peek(2)
	if len(b) < 2 {
		return "raw"
	}
	if b[0] == 0x1f && b[1] == 0x8b {
		return "gzip"
	}
	if b[0]&0x0f == 8 && b[0]>>4 <= 7 && binary.BigEndian.Uint16(b)%31 == 0 {
		return "zlib"
	}
	return "raw"
}

// newDecompressReader returns a reader that decodes format from r.
func newDecompressReader(r io.Reader, format string, opts ...inflate.Option) (io.Reader, error) {
	switch format {
	case "raw":
		return inflate.NewReader(r, opts...), nil
	case "gzip":
		return envelope.NewGzipReader(r, opts...)
	case "zlib":
		return envelope.NewZlibReader(r, opts...)
	}
	return nil, errors.Errorf("unknown format '%s'", format)
}

// Decompress runs the decompress subcommand.
func Decompress(cfg *config.Config, log logrus.FieldLogger) error {
	cmd := cfg.CLI.Decompress
	settings := cfg.TOML.Decompress

	in, size, err := openInput(cmd.Input)
	if err != nil {
		return err
	}
	defer in.Close()

	src, done := progress(in, size, cfg.CLI.Quiet)
	defer done()
	counted := &countingReader{r: src}
	br := bufio.NewReaderSize(counted, settings.BufferSize)

	format := settings.Format
	if format == "auto" {
		format = formatFromName(cmd.Input)
	}
	if format == "" {
		format = sniffFormat(br)
	}
	variant := settings.DeflateVariant()
	if variant == deflate.Deflate64 && format != "raw" {
		return errors.Errorf("deflate64 is only supported for raw streams, not %s", format)
	}

	outName := cmd.Output
	if outName == "" {
		outName = decompressedName(cmd.Input)
	}

	log.WithFields(logrus.Fields{
		"input":   cmd.Input,
		"output":  outName,
		"format":  format,
		"variant": variant,
		"strict":  *settings.Strict,
	}).Debug("decompressing")

	r, err := newDecompressReader(br, format,
		inflate.WithVariant(variant),
		inflate.WithStrict(*settings.Strict),
		inflate.WithLogger(log),
	)
	if err != nil {
		return errors.Wrap(err, "unable to read stream header")
	}

	out, err := createOutput(outName, cmd.Force)
	if err != nil {
		return err
	}
	defer out.Close()

	start := time.Now()
	written, err := io.CopyBuffer(out, r, make([]byte, settings.BufferSize))
	if err != nil {
		if deflate.IsCorrupt(err) {
			return errors.Wrapf(err, "corrupt input after %d bytes of output", written)
		}
		return errors.Wrap(err, "unable to decompress")
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "unable to close '%s'", outName)
	}

	if !cfg.CLI.Quiet {
		printSummary("decompressed", counted.n, written, time.Since(start))
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
