// ABOUTME: Discarding audio output
// ABOUTME: Used for headless operation and tests
package output

// Null is an output that accepts and discards all samples.
type Null struct {
	opened  bool
	Written int64 // total samples accepted
}

// NewNull creates a discarding output
func NewNull() *Null {
	return &Null{}
}

// Open initializes the output
func (n *Null) Open(sampleRate, channels, bitDepth int) error {
	n.opened = true
	return nil
}

// Write discards the samples
func (n *Null) Write(samples []int32) error {
	n.Written += int64(len(samples))
	return nil
}

// Close releases resources
func (n *Null) Close() error {
	n.opened = false
	return nil
}
