package common

// RequestIDHeaderName is the gRPC metadata key used to correlate client
// calls with server logs.
const RequestIDHeaderName = "x-request-id"

// TreasuryUserID is the pseudo-user that owns the chain treasury address.
// Credits are minted from it and debits are burned back into it.
const TreasuryUserID = "treasury"
