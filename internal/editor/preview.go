package editor

// Preview is a temporary encoded rendering of the session's current output,
// the counterpart of a browser object URL. It stays valid until released
// explicitly or until the session closes.
type Preview struct {
	ID string
	Blob

	released bool
}

func (p *Preview) Released() bool {
	return p.released
}

func (p *Preview) release() {
	p.released = true
	p.Data = nil
}
