package piv

// Secret is an owned byte span holding key material, a PIN/PUK, or any other
// value that must not outlive the operation that uses it. Callers construct
// one with NewSecret or wrapSecret and must call Wipe when done; command
// handlers in this package always wipe every Secret they touch on every
// return path, success or failure.
type Secret struct {
	b []byte
}

// NewSecret copies src into a new owned buffer. The caller's copy of src is
// not touched; callers that want the original wiped too must wipe it
// themselves.
func NewSecret(src []byte) *Secret {
	b := make([]byte, len(src))
	copy(b, src)
	return &Secret{b: b}
}

// wrapSecret takes ownership of an existing buffer without copying. Callers
// must not retain any other reference to b.
func wrapSecret(b []byte) *Secret {
	return &Secret{b: b}
}

// Bytes returns the live buffer. The returned slice becomes invalid the
// instant Wipe is called; callers must not retain it past that point.
func (s *Secret) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.b
}

// Len reports the length of the held buffer.
func (s *Secret) Len() int {
	if s == nil {
		return 0
	}
	return len(s.b)
}

// Wipe overwrites every byte of the buffer with zero and releases it. Wipe is
// safe to call multiple times and on a nil *Secret.
func (s *Secret) Wipe() {
	if s == nil {
		return
	}
	for i := range s.b {
		s.b[i] = 0
	}
	s.b = nil
}

// wipeBytes zeroes a plain byte slice in place. Used for intermediate
// buffers (decrypted witnesses, host challenges, padded key parts) that
// are not worth wrapping in a Secret because they never leave the function
// that created them.
func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
