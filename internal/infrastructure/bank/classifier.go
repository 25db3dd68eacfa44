package bank

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/finvault/wallet-ledger/internal/application"
)

// classifyResponse maps one bank HTTP response onto the three-way outcome.
// The rules, in order:
//
//   - 2xx with body status 200 and data "success" is SUCCESS.
//   - A body that is not JSON is UNKNOWN: the bank answered something, so the
//     transfer may well have happened.
//   - 5xx is UNKNOWN for the same reason.
//   - Everything else is a definitive rejection, FINAL_FAILURE.
//
// 429 never reaches this function; the retry loop consumes it first.
func classifyResponse(httpStatus int, body []byte, fallbackReference string) application.TransferResult {
	var parsed transferResponseBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return application.UnknownResult(fmt.Sprintf("invalid_json_response_http_%d", httpStatus))
	}

	bodyStatus := normalizeStatus(parsed.Status, httpStatus)
	httpSuccess := httpStatus >= 200 && httpStatus < 300

	if httpSuccess && bodyStatus == 200 && parsed.Data == "success" {
		return application.SuccessResult(firstNonEmpty(
			parsed.Reference,
			parsed.BankReference,
			parsed.TransferID,
			fallbackReference,
		))
	}

	reason := parsed.ErrorReason
	if reason == "" {
		reason = parsed.Data
	}
	if reason == "" {
		reason = fmt.Sprintf("upstream_status_%d", bodyStatus)
	}

	if httpStatus >= 500 {
		return application.UnknownResult(reason)
	}
	return application.FinalFailureResult(reason)
}

// normalizeStatus coerces the loosely typed body status into an int, falling
// back to the HTTP status when absent or unparseable.
func normalizeStatus(raw any, httpStatus int) int {
	switch v := raw.(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return httpStatus
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
