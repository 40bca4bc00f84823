package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/custody/types"
)

// Mock is an in-memory backend for tests and the designated no-fee
// mock network. Failures are scriptable per call.
type Mock struct {
	mu sync.Mutex

	network  string
	currency string

	addrSeq int
	sends   []MockSend

	// FailNewAddress makes GetNewAddress return this error.
	FailNewAddress error
	// FailSend makes SendToAddress return this error after recording
	// nothing.
	FailSend error
}

// MockSend records one accepted SendToAddress call.
type MockSend struct {
	Address string
	Amount  types.Money
	RefID   string
}

// NewMock creates a mock backend for the given network and currency.
func NewMock(network, currency string) *Mock {
	return &Mock{network: network, currency: currency}
}

func (m *Mock) Network() string  { return m.network }
func (m *Mock) Currency() string { return m.currency }

func (m *Mock) GetNewAddress(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNewAddress != nil {
		return "", m.FailNewAddress
	}
	m.addrSeq++
	return fmt.Sprintf("%s-addr-%d", m.network, m.addrSeq), nil
}

func (m *Mock) SendToAddress(_ context.Context, addr string, amount types.Money) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend != nil {
		return "", m.FailSend
	}
	ref := fmt.Sprintf("%s-tx-%d", m.network, len(m.sends)+1)
	m.sends = append(m.sends, MockSend{Address: addr, Amount: amount, RefID: ref})
	return ref, nil
}

// Sends returns a copy of the accepted sends, in order.
func (m *Mock) Sends() []MockSend {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSend, len(m.sends))
	copy(out, m.sends)
	return out
}
