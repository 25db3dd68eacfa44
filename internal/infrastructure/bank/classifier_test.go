package bank

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finvault/wallet-ledger/internal/application"
)

func TestClassifyResponse_Success(t *testing.T) {
	body := []byte(`{"status": 200, "data": "success", "reference": "ref-1"}`)

	result := classifyResponse(200, body, "fallback-key")

	assert.Equal(t, application.OutcomeSuccess, result.Outcome)
	assert.Equal(t, "ref-1", result.Reference)
	assert.Empty(t, result.ErrorReason)
}

func TestClassifyResponse_ReferencePrecedence(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "reference wins",
			body: `{"status": 200, "data": "success", "reference": "a", "bank_reference": "b", "transfer_id": "c"}`,
			want: "a",
		},
		{
			name: "bank_reference next",
			body: `{"status": 200, "data": "success", "bank_reference": "b", "transfer_id": "c"}`,
			want: "b",
		},
		{
			name: "transfer_id next",
			body: `{"status": 200, "data": "success", "transfer_id": "c"}`,
			want: "c",
		},
		{
			name: "idempotency key fallback",
			body: `{"status": 200, "data": "success"}`,
			want: "fallback-key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classifyResponse(200, []byte(tt.body), "fallback-key")
			assert.Equal(t, application.OutcomeSuccess, result.Outcome)
			assert.Equal(t, tt.want, result.Reference)
		})
	}
}

func TestClassifyResponse_NonJSONIsUnknown(t *testing.T) {
	result := classifyResponse(502, []byte("<html>Bad Gateway</html>"), "key")

	assert.Equal(t, application.OutcomeUnknown, result.Outcome)
	assert.Equal(t, "invalid_json_response_http_502", result.ErrorReason)
}

func TestClassifyResponse_ServerErrorIsUnknown(t *testing.T) {
	body := []byte(`{"status": 500, "data": "error", "error_reason": "internal"}`)

	result := classifyResponse(500, body, "key")

	assert.Equal(t, application.OutcomeUnknown, result.Outcome)
	assert.Equal(t, "internal", result.ErrorReason)
}

func TestClassifyResponse_RejectionIsFinalFailure(t *testing.T) {
	tests := []struct {
		name       string
		httpStatus int
		body       string
		wantReason string
	}{
		{
			name:       "explicit error_reason",
			httpStatus: 400,
			body:       `{"status": 400, "data": "failed", "error_reason": "account_closed"}`,
			wantReason: "account_closed",
		},
		{
			name:       "data as reason",
			httpStatus: 400,
			body:       `{"status": 400, "data": "failed"}`,
			wantReason: "failed",
		},
		{
			name:       "synthesized reason",
			httpStatus: 403,
			body:       `{"status": 403}`,
			wantReason: "upstream_status_403",
		},
		{
			name:       "2xx but body says failed",
			httpStatus: 200,
			body:       `{"status": 200, "data": "failed"}`,
			wantReason: "failed",
		},
		{
			name:       "2xx but body status not 200",
			httpStatus: 200,
			body:       `{"status": 400, "data": "success"}`,
			wantReason: "upstream_status_400",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classifyResponse(tt.httpStatus, []byte(tt.body), "key")
			assert.Equal(t, application.OutcomeFinalFailure, result.Outcome)
			assert.Equal(t, tt.wantReason, result.ErrorReason)
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, 200, normalizeStatus(float64(200), 500))
	assert.Equal(t, 404, normalizeStatus("404", 500))
	assert.Equal(t, 500, normalizeStatus("not-a-number", 500))
	assert.Equal(t, 500, normalizeStatus(nil, 500))
}
