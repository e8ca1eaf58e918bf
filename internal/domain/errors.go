// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a uniqueness or compare-and-swap conflict in storage.
var ErrConflict = errors.New("conflict: resource was modified by another request")

var (
	// ErrInvalidRequest marks malformed or incomplete caller input. Never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrSignatureInvalid marks a webhook whose HMAC does not match the raw body.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrPaymentRecordNotFound means a payment event references an order the
	// registrar never recorded.
	ErrPaymentRecordNotFound = errors.New("payment record not found")

	// ErrSlugTaken is returned by tenant stores when the slug is already in use.
	ErrSlugTaken = errors.New("slug taken")

	// ErrSlugExhausted is fatal for provisioning and needs an operator.
	ErrSlugExhausted = errors.New("slug exhausted")

	ErrTokenNotFound    = errors.New("activation token not found")
	ErrTokenExpired     = errors.New("activation token expired")
	ErrTokenAlreadyUsed = errors.New("activation token already used")

	// ErrUpstreamUnavailable wraps failures of external capabilities (payment
	// processor, mail relay). Safe to retry: nothing is committed before an
	// upstream success.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUnauthorized marks a failed login. It never says which credential was wrong.
	ErrUnauthorized = errors.New("invalid credentials")
)

// kinds is ordered: the first matching sentinel names the error.
var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidRequest, "invalid_request"},
	{ErrSignatureInvalid, "signature_invalid"},
	{ErrPaymentRecordNotFound, "payment_record_not_found"},
	{ErrSlugExhausted, "slug_exhausted"},
	{ErrTokenNotFound, "token_not_found"},
	{ErrTokenExpired, "token_expired"},
	{ErrTokenAlreadyUsed, "token_already_used"},
	{ErrUpstreamUnavailable, "upstream_unavailable"},
	{ErrUnauthorized, "unauthorized"},
	{ErrSlugTaken, "conflict"},
	{ErrConflict, "conflict"},
	{ErrNotFound, "not_found"},
}

// Kind returns the stable error kind for err, or "internal" when err does not
// wrap any domain sentinel.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
