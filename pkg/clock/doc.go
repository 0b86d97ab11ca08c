// ABOUTME: Clock package
// ABOUTME: Monotonic time source shared by the voice pipeline
// Package clock provides the monotonic time source used for jitter buffer,
// concealment, and eviction timeouts.
//
// Example:
//
//	c := clock.NewManual(time.Unix(0, 0))
//	start := c.Now()
//	c.Advance(60 * time.Millisecond)
//	elapsed := c.Now().Sub(start)
package clock
