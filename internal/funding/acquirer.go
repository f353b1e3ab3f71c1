// Package funding is the boundary to external payment methods. Gateway
// protocols are out of scope; the engine only consumes an approve or decline
// decision before it moves money.
package funding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bazaarpay/bazaarpay/internal/money"
)

// ErrDeclined is returned when the external method refuses a request.
var ErrDeclined = errors.New("payment method declined")

const (
	StatusApproved = "approved"
	StatusDeclined = "declined"
)

// Acquirer represents a connector to an external payment method.
type Acquirer interface {
	// AuthorizeTopUp confirms that gross was collected from the method.
	AuthorizeTopUp(ctx context.Context, req Authorization) (Decision, error)
	// SubmitPayout hands a pending withdrawal to the method for settlement.
	SubmitPayout(ctx context.Context, req Authorization) (Decision, error)
}

// Authorization is what the engine tells the method about a movement.
type Authorization struct {
	Reference string
	OwnerID   string
	Method    string
	Amount    money.Amount
	Details   map[string]string
}

// Decision captures the method's answer.
type Decision struct {
	Reference string
	Status    string
}

// StaticAcquirer simulates a method that approves everything whose details
// look well formed.
type StaticAcquirer struct{}

// AuthorizeTopUp approves the request with a synthetic reference.
func (StaticAcquirer) AuthorizeTopUp(_ context.Context, req Authorization) (Decision, error) {
	if err := ValidateDetails(req.Method, req.Details); err != nil {
		return Decision{Status: StatusDeclined}, fmt.Errorf("%w: %v", ErrDeclined, err)
	}
	return Decision{Reference: uuid.NewString(), Status: StatusApproved}, nil
}

// SubmitPayout accepts the payout with a synthetic reference.
func (StaticAcquirer) SubmitPayout(_ context.Context, req Authorization) (Decision, error) {
	if err := ValidateDetails(req.Method, req.Details); err != nil {
		return Decision{Status: StatusDeclined}, fmt.Errorf("%w: %v", ErrDeclined, err)
	}
	return Decision{Reference: uuid.NewString(), Status: StatusApproved}, nil
}

// ValidateDetails performs the shape checks a method would do on its own
// fields. Unknown fields are ignored.
func ValidateDetails(method string, details map[string]string) error {
	if method == "demo_card" {
		if card, ok := details["cardNumber"]; ok {
			return validateCardNumber(card)
		}
	}
	return nil
}

func validateCardNumber(card string) error {
	digits := strings.ReplaceAll(card, " ", "")
	if len(digits) < 12 || len(digits) > 19 {
		return fmt.Errorf("card number must be between 12 and 19 digits")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("card number must be numeric")
		}
	}
	return nil
}
