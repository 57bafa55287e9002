package compress

import "github.com/andybalholm/deflate"

// A MatchFinder exposes the Deflater's LZ77 stage as a deflate.MatchFinder,
// for callers that want to pair it with a different encoder, such as a
// deflate.TextEncoder. Each call to FindMatches is independent.
type MatchFinder struct {
	Level deflate.Level

	d *Deflater
	c collector
}

// collector is an Encoder that keeps the matches instead of encoding them.
type collector struct {
	matches []deflate.Match
}

func (c *collector) Header(dst []byte) []byte { return dst }
func (c *collector) Sync(dst []byte) []byte   { return dst }
func (c *collector) Reset()                   { c.matches = c.matches[:0] }

func (c *collector) Encode(dst []byte, src []byte, matches []deflate.Match, lastBlock bool) []byte {
	c.matches = append(c.matches, matches...)
	return dst
}

func (m *MatchFinder) Reset() {
	m.d = nil
}

// FindMatches appends to dst the matches the Deflater would use for src at
// m.Level. Runs of unmatched bytes that were split across blocks are
// merged. A Level outside the valid range is treated as the default.
func (m *MatchFinder) FindMatches(dst []deflate.Match, src []byte) []deflate.Match {
	if m.d == nil {
		level := m.Level
		if level.Validate() != nil {
			level = deflate.DefaultCompression
		}
		m.d, _ = New(level, WithEncoder(&m.c))
	}
	m.d.Reset()
	if len(src) == 0 {
		return dst
	}
	m.d.SetInput(src)
	for {
		if _, done := m.d.Finish(nil); done {
			break
		}
	}

	carry := 0
	for _, mt := range m.c.matches {
		if mt.Length == 0 {
			carry += mt.Unmatched
			continue
		}
		mt.Unmatched += carry
		carry = 0
		dst = append(dst, mt)
	}
	if carry > 0 {
		dst = append(dst, deflate.Match{Unmatched: carry})
	}
	return dst
}
