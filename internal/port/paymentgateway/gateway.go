// Package paymentgateway defines the port to the external payment processor.
package paymentgateway

import (
	"context"

	"github.com/Strob0t/TenantForge/internal/domain/payment"
)

// Gateway opens orders with the processor. Implementations must honor ctx
// cancellation and deadlines.
type Gateway interface {
	CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.Order, error)
	// KeyID is the public key the checkout page needs. It is not a secret.
	KeyID() string
}
