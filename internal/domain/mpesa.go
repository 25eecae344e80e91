package domain

import "github.com/shopspring/decimal"

// STKPushResult is the normalized response to an STK push initiation.
type STKPushResult struct {
	CheckoutRequestID string `json:"checkout_request_id"`
	ResponseCode      string `json:"response_code"`
	CustomerMessage   string `json:"customer_message"`
}

// STKStatusResult is the normalized response to a status query.
// ResultCode 0 means the push settled; any other code is a final
// provider-reported failure.
type STKStatusResult struct {
	ResultCode int    `json:"result_code"`
	ResultDesc string `json:"result_desc"`
}

func (r STKStatusResult) Settled() bool { return r.ResultCode == 0 }

// CallbackResult is the normalized shape of a Daraja webhook, success or
// not. Malformed payloads parse into a failed result rather than an error
// so the HTTP layer can still acknowledge receipt.
type CallbackResult struct {
	Success           bool            `json:"success"`
	CheckoutRequestID string          `json:"checkout_request_id"`
	Amount            decimal.Decimal `json:"amount"`
	MpesaReceiptID    string          `json:"mpesa_receipt_id"`
	Phone             string          `json:"phone"`
	ResultCode        int             `json:"result_code"`
	ResultDesc        string          `json:"result_desc"`
}
