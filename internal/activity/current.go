package activity

import "sync/atomic"

// Current is the single-slot publication of the open segment. One writer
// (the segmentation machine) replaces it; any number of readers load it.
// Readers always see a complete value.
type Current struct {
	seg     atomic.Pointer[OpenSegment]
	version atomic.Uint64
}

// Publish replaces the slot. A nil segment clears it.
func (c *Current) Publish(seg *OpenSegment) {
	if seg == nil {
		c.seg.Store(nil)
	} else {
		cp := *seg
		c.seg.Store(&cp)
	}
	c.version.Add(1)
}

// Load returns a copy of the published segment, or nil.
func (c *Current) Load() *OpenSegment {
	if c == nil {
		return nil
	}
	p := c.seg.Load()
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Version increases on every Publish.
func (c *Current) Version() uint64 {
	return c.version.Load()
}

// Fixed returns a slot holding seg. Tests and one-off queries use it to
// inject a known open segment.
func Fixed(seg *OpenSegment) *Current {
	c := &Current{}
	c.Publish(seg)
	return c
}
