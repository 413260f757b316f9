package sales

import "fmt"

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentDigital  PaymentMethod = "digital"
)

var paymentLabels = map[PaymentMethod]string{
	PaymentCash:     "Cash",
	PaymentCard:     "Credit/Debit Card",
	PaymentTransfer: "Bank Transfer",
	PaymentDigital:  "Digital Wallet",
}

// ParsePaymentMethod accepts the wire value; empty means cash.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	if s == "" {
		return PaymentCash, nil
	}
	pm := PaymentMethod(s)
	if _, ok := paymentLabels[pm]; !ok {
		return "", &InvalidError{Reason: fmt.Sprintf("unknown payment method %q", s)}
	}
	return pm, nil
}

func (p PaymentMethod) Label() string { return paymentLabels[p] }
