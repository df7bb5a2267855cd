// Package pcsc implements piv.Transport over a real smart-card reader via
// github.com/ebfe/scard.
package pcsc

import (
	"context"
	"fmt"

	"github.com/ebfe/scard"
)

// Connection wraps a PC/SC card connection and implements piv.Transport.
type Connection struct {
	ctx    *scard.Context
	card   *scard.Card
	Reader string
}

// Connect establishes a connection to the reader at readerIndex (0-based,
// per the order ListReaders returns).
func Connect(readerIndex int) (*Connection, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("pcsc: EstablishContext: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		ctx.Release()
		return nil, fmt.Errorf("pcsc: no readers found: %w", err)
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		ctx.Release()
		return nil, fmt.Errorf("pcsc: reader index out of range (0..%d)", len(readers)-1)
	}

	reader := readers[readerIndex]
	card, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("pcsc: connect: %w", err)
	}

	return &Connection{ctx: ctx, card: card, Reader: reader}, nil
}

// ConnectByName connects to the named reader instead of by index, useful
// when more than one reader is attached and the caller has already picked
// one via ListReaders.
func ConnectByName(name string) (*Connection, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("pcsc: EstablishContext: %w", err)
	}
	card, err := ctx.Connect(name, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("pcsc: connect to %q: %w", name, err)
	}
	return &Connection{ctx: ctx, card: card, Reader: name}, nil
}

// ListReaders returns the names of every PC/SC reader currently attached.
func ListReaders() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("pcsc: EstablishContext: %w", err)
	}
	defer ctx.Release()
	return ctx.ListReaders()
}

// Close disconnects the card and releases the PC/SC context.
func (c *Connection) Close() {
	if c == nil {
		return
	}
	if c.card != nil {
		_ = c.card.Disconnect(scard.LeaveCard)
	}
	if c.ctx != nil {
		_ = c.ctx.Release()
	}
}

// Exchange implements piv.Transport. ctx is honored only up to the point
// of the call: scard has no native cancellation, so a canceled context is
// noticed only before the blocking Transmit.
func (c *Connection) Exchange(ctx context.Context, request []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c == nil || c.card == nil {
		return nil, fmt.Errorf("pcsc: connection not established")
	}
	return c.card.Transmit(request)
}
