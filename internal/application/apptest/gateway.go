package apptest

import (
	"context"
	"sync"

	"github.com/finvault/wallet-ledger/internal/application"
)

// MockBankGateway is a scriptable application.BankGateway. Set TransferFn or
// QueryStatusFn to control outcomes; calls are recorded for assertions. The
// zero value answers every transfer with SUCCESS.
type MockBankGateway struct {
	mu sync.Mutex

	TransferFn    func(ctx context.Context, req application.TransferRequest) (application.TransferResult, error)
	QueryStatusFn func(ctx context.Context, q application.StatusQuery) (application.TransferResult, error)
	StatusEnabled bool

	TransferCalls []application.TransferRequest
	StatusCalls   []application.StatusQuery
}

func (g *MockBankGateway) Transfer(ctx context.Context, req application.TransferRequest) (application.TransferResult, error) {
	g.mu.Lock()
	g.TransferCalls = append(g.TransferCalls, req)
	fn := g.TransferFn
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return application.SuccessResult(req.IdempotencyKey), nil
}

func (g *MockBankGateway) QueryTransferStatus(ctx context.Context, q application.StatusQuery) (application.TransferResult, error) {
	g.mu.Lock()
	g.StatusCalls = append(g.StatusCalls, q)
	fn := g.QueryStatusFn
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, q)
	}
	return application.UnknownResult("status_not_scripted"), nil
}

func (g *MockBankGateway) CanQueryStatus() bool {
	return g.StatusEnabled
}

func (g *MockBankGateway) TransferCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.TransferCalls)
}
