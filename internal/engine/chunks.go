package engine

import (
	"errors"
	"io"
)

// readChunks forwards r to yield as soon as data arrives, in pieces of at
// most size bytes. Pieces always hold whole PCM16 samples: an odd trailing
// byte is carried into the next piece, and dropped at EOF. stopped is true
// when yield returned false.
func readChunks(r io.Reader, size int, yield func([]byte) bool) (stopped bool, err error) {
	if size < 2 {
		size = 2
	}

	var carry []byte
	for {
		buf := make([]byte, size)
		n := copy(buf, carry)
		m, rerr := r.Read(buf[n:])
		n += m

		whole := n &^ 1
		carry = append(carry[:0], buf[whole:n]...)
		if whole > 0 && !yield(buf[:whole]) {
			return true, nil
		}

		if errors.Is(rerr, io.EOF) {
			return false, nil
		}
		if rerr != nil {
			return false, rerr
		}
	}
}
