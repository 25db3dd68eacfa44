package bank

import "errors"

// ErrStatusQueryUnsupported is returned by gateways that have no status
// endpoint configured. The reconciler checks CanQueryStatus first, so seeing
// this error indicates a wiring mistake.
var ErrStatusQueryUnsupported = errors.New("bank: status endpoint not configured")
