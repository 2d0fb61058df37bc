package audio

// Chunker coalesces small caller frames before they are forwarded to the model.
// A chunk is released once MinBytes have accumulated or MaxFrames frames are buffered.
type Chunker struct {
	MinBytes  int
	MaxFrames int

	buf    []byte
	frames int
}

// NewChunker uses 1600 bytes (50 ms at 16 kHz) and 10 frames.
func NewChunker() *Chunker {
	return &Chunker{MinBytes: 1600, MaxFrames: 10}
}

// Add buffers frame and returns a coalesced chunk when one is ready, otherwise nil.
func (c *Chunker) Add(frame []byte) []byte {
	if len(frame) == 0 {
		return nil
	}
	c.buf = append(c.buf, frame...)
	c.frames++
	if len(c.buf) >= c.MinBytes || (c.MaxFrames > 0 && c.frames >= c.MaxFrames) {
		return c.Flush()
	}
	return nil
}

// Flush returns whatever is buffered and resets the chunker.
func (c *Chunker) Flush() []byte {
	if len(c.buf) == 0 {
		return nil
	}
	out := c.buf
	c.buf = nil
	c.frames = 0
	return out
}

func (c *Chunker) Buffered() int { return len(c.buf) }
