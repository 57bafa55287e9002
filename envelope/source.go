package envelope

import "io"

// source is an io.Reader that bytes can be pushed back onto. The readers
// use it to return the input the Inflater read past the end of a DEFLATE
// stream, so that the trailer and any following member can be parsed.
type source struct {
	pending []byte
	r       io.Reader
}

func (s *source) Read(p []byte) (int, error) {
	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		return n, nil
	}
	return s.r.Read(p)
}

// unread pushes b back in front of the unread input. It copies b.
func (s *source) unread(b []byte) {
	if len(b) == 0 {
		return
	}
	s.pending = append(append([]byte{}, b...), s.pending...)
}

// peek returns the next n bytes without consuming them.
func (s *source) peek(n int) ([]byte, error) {
	for len(s.pending) < n {
		buf := make([]byte, n-len(s.pending))
		m, err := io.ReadFull(s.r, buf)
		s.pending = append(s.pending, buf[:m]...)
		if err != nil {
			return s.pending, err
		}
	}
	return s.pending[:n], nil
}
