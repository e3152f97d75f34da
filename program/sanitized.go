package program

// IsWritableIndex reports whether the key at index i is writable under the
// validator's header partition: the last NumReadonlySignedAccounts of the
// signing slice and the last NumReadonlyUnsignedAccounts of the key list are
// read-only, everything else is writable.
func (m *Message) IsWritableIndex(i int) bool {
	req := int(m.Header.NumRequiredSignatures)
	if i < req {
		return i < req-int(m.Header.NumReadonlySignedAccounts)
	}
	return i < len(m.AccountKeys)-int(m.Header.NumReadonlyUnsignedAccounts)
}

// Sanitized wraps a compiled message with a precomputed writability cache so
// repeated index queries don't rederive the partition arithmetic.
type Sanitized struct {
	Message  *Message
	writable []bool
}

func NewSanitized(m *Message) *Sanitized {
	cache := make([]bool, len(m.AccountKeys))
	for i := range m.AccountKeys {
		cache[i] = m.IsWritableIndex(i)
	}
	return &Sanitized{Message: m, writable: cache}
}

func (s *Sanitized) IsSigner(i int) bool {
	return s.Message.IsSigner(i)
}

func (s *Sanitized) IsWritable(i int) bool {
	if i < 0 || i >= len(s.writable) {
		return false
	}
	return s.writable[i]
}
