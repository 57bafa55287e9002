package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/andybalholm/deflate"
	"github.com/andybalholm/deflate/compress"
	"github.com/andybalholm/deflate/internal/config"
)

// MatchStats summarizes the LZ77 parse of an input.
type MatchStats struct {
	Matches      int
	MatchedBytes int
	Literals     int
	LongestMatch int
	TotalDist    int
}

func matchStats(matches []deflate.Match) MatchStats {
	var s MatchStats
	for _, m := range matches {
		s.Literals += m.Unmatched
		if m.Length == 0 {
			continue
		}
		s.Matches++
		s.MatchedBytes += m.Length
		s.TotalDist += m.Distance
		if m.Length > s.LongestMatch {
			s.LongestMatch = m.Length
		}
	}
	return s
}

// blockCounts compresses data and reports how many blocks of each type
// the encoder chose, and the compressed size.
func blockCounts(data []byte, level deflate.Level, log logrus.FieldLogger) (stored, fixed, dynamic, size int, err error) {
	enc := compress.NewBlockEncoder()
	d, err := compress.New(level, compress.WithEncoder(enc), compress.WithLogger(log))
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if err := d.SetInput(data); err != nil {
		return 0, 0, 0, 0, err
	}
	buf := make([]byte, 64<<10)
	for {
		n, done := d.Finish(buf)
		size += n
		if done {
			break
		}
	}
	stored, fixed, dynamic = enc.Blocks()
	return stored, fixed, dynamic, size, nil
}

// Inspect runs the inspect subcommand.
func Inspect(cfg *config.Config, log logrus.FieldLogger) error {
	cmd := cfg.CLI.Inspect

	levelName := cmd.Level
	if levelName == "" {
		levelName = cfg.TOML.Compress.Level
	}
	level, err := deflate.ParseLevel(levelName)
	if err != nil {
		return err
	}

	in, _, err := openInput(cmd.Input)
	if err != nil {
		return err
	}
	defer in.Close()
	data, err := io.ReadAll(in)
	if err != nil {
		return errors.Wrap(err, "unable to read input")
	}

	var mf deflate.MatchFinder = &compress.MatchFinder{Level: level}
	if cmd.Finder == "hash" {
		mf = &deflate.HashFinder{}
	}
	matches := mf.FindMatches(nil, data)

	if cmd.Text {
		enc := &deflate.TextEncoder{}
		if _, err := os.Stdout.Write(enc.Encode(nil, data, matches, true)); err != nil {
			return errors.Wrap(err, "unable to write matches")
		}
	}

	stored, fixed, dynamic, size, err := blockCounts(data, level, log)
	if err != nil {
		return errors.Wrap(err, "unable to compress input")
	}

	if cfg.CLI.Quiet {
		return nil
	}

	s := matchStats(matches)
	w := color.Error
	label := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(w, "%s %s at level %s\n", label("input:"), humanize.Bytes(uint64(len(data))), level)
	fmt.Fprintf(w, "%s %s\n", label("finder:"), finderName(cmd.Finder))
	fmt.Fprintf(w, "%s %s, %s bytes matched, %s literals\n", label("matches:"),
		humanize.Comma(int64(s.Matches)), humanize.Comma(int64(s.MatchedBytes)), humanize.Comma(int64(s.Literals)))
	if s.Matches > 0 {
		fmt.Fprintf(w, "%s %.1f average, %d longest\n", label("match length:"),
			float64(s.MatchedBytes)/float64(s.Matches), s.LongestMatch)
		fmt.Fprintf(w, "%s %.1f average\n", label("distance:"), float64(s.TotalDist)/float64(s.Matches))
	}
	fmt.Fprintf(w, "%s %d stored, %d fixed, %d dynamic\n", label("blocks:"), stored, fixed, dynamic)
	fmt.Fprintf(w, "%s %s\n", label("compressed:"), humanize.Bytes(uint64(size)))
	return nil
}

func finderName(name string) string {
	if name == "hash" {
		return "single 4-byte hash, greedy"
	}
	return "deflater hash chains"
}
