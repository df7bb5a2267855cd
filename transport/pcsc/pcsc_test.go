package pcsc

import (
	"context"
	"testing"
)

// These two cases are the only parts of Connection.Exchange exercisable
// without a real PC/SC daemon and reader; everything else in this package
// talks directly to github.com/ebfe/scard and needs actual hardware.

func TestExchangeRejectsNilConnection(t *testing.T) {
	var c *Connection
	if _, err := c.Exchange(context.Background(), []byte{0x00}); err == nil {
		t.Fatal("expected an error for a nil Connection")
	}
}

func TestExchangeRejectsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &Connection{}
	if _, err := c.Exchange(ctx, []byte{0x00}); err == nil {
		t.Fatal("expected an error for an already-canceled context")
	}
}
