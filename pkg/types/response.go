package types

// SuccessEnvelope wraps every 2xx body: an order, a cashout, a wallet page or
// a report row set sits under "data".
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the client-facing form of a pkg/errors.Error. Code is the stable
// machine code (STOCK_UNAVAILABLE, INSUFFICIENT_BALANCE, ...); Details carries
// field errors or the available balance when there is something to add.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope is the body of every 4xx and 5xx response.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
