package payments

import "context"

// CheckoutParams configures a hosted checkout session.
type CheckoutParams struct {
	CustomerID  string
	Currency    string
	AmountCents int64
	Description string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

// CheckoutSession is the gateway-neutral view of a hosted payment page.
type CheckoutSession struct {
	ID              string
	URL             string
	CustomerID      string
	PaymentIntentID string
	Paid            bool
	Metadata        map[string]string
}

// Gateway abstracts the payment provider so services can be tested without
// network calls.
type Gateway interface {
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	RefundPayment(ctx context.Context, paymentIntentID string) (string, error)
}
