package bank

// transferPayload is the JSON body for POST <base>/. The idempotency key
// travels in the body and in the X-Idempotency-Key header.
type transferPayload struct {
	IdempotencyKey string `json:"idempotency_key"`
	WalletOwnerRef string `json:"wallet_owner_ref"`
	Amount         int64  `json:"amount"`
}

// transferResponseBody covers both the transfer and status endpoints. Status
// arrives as an int from well-behaved banks, but some gateways send it as a
// string, so it is decoded loosely and normalized in the classifier.
type transferResponseBody struct {
	Status        any    `json:"status"`
	Data          string `json:"data"`
	Reference     string `json:"reference"`
	BankReference string `json:"bank_reference"`
	TransferID    string `json:"transfer_id"`
	ErrorReason   string `json:"error_reason"`
}
