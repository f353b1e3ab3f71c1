package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bazaarpay/bazaarpay/internal/fees"
	"github.com/bazaarpay/bazaarpay/internal/funding"
	"github.com/bazaarpay/bazaarpay/internal/identity"
	"github.com/bazaarpay/bazaarpay/internal/ledger"
	"github.com/bazaarpay/bazaarpay/internal/marketplace"
	"github.com/bazaarpay/bazaarpay/internal/money"
	"github.com/bazaarpay/bazaarpay/internal/notification"
	"github.com/bazaarpay/bazaarpay/internal/reference"
	"github.com/bazaarpay/bazaarpay/internal/storage"
	"github.com/bazaarpay/bazaarpay/internal/wallet"
)

const (
	maxNoteLength   = 280
	walletMethod    = "wallet"
	defaultProduct  = "general"
	maxReasonLength = 500
)

// TopUpInput adds external money to a wallet.
type TopUpInput struct {
	UserID         string
	Amount         money.Amount
	Method         string
	Details        map[string]string
	IdempotencyKey string
}

// TopUp credits gross minus the method's processing fee as one completed row.
// The external method is authorized inside the unit once the idempotency key
// is claimed, so concurrent retries reach it at most once and a decline
// releases the key.
func (e *Engine) TopUp(ctx context.Context, in TopUpInput) (res Result, err error) {
	ctx, end := e.telemetry.start(ctx, "topup", in.UserID)
	defer func() { end(err) }()

	if err := validateAmount(in.Amount); err != nil {
		return Result{}, err
	}
	if !e.fees.SupportsMethod(in.Method) {
		return Result{}, invalid("paymentMethod", "unsupported payment method %q", in.Method)
	}
	fp := fingerprint(in.Amount.String(), in.Method, detailsPart(in.Details))
	if prior, err := e.checkReplay(ctx, in.UserID, in.IdempotencyKey, ledger.KindTopUp, fp); err != nil || prior != nil {
		return replayOrFail(prior, err)
	}

	breakdown, err := e.fees.Breakdown(in.Amount, fees.OpTopUp, in.Method)
	if err != nil {
		return Result{}, invalid("paymentMethod", "%v", err)
	}
	if breakdown.Net <= 0 {
		return Result{}, invalid("amount", "is too small to cover the processing fee")
	}
	ref := e.refs.Next(reference.PrefixTopUp)

	out, err := e.post(ctx, posting{
		kind:        ledger.KindTopUp,
		initiator:   in.UserID,
		idemKey:     in.IdempotencyKey,
		fingerprint: fp,
		reference:   ref,
		before: func(ctx context.Context, _ storage.Unit) error {
			_, err := e.acquirer.AuthorizeTopUp(ctx, funding.Authorization{
				Reference: ref,
				OwnerID:   in.UserID,
				Method:    in.Method,
				Amount:    in.Amount,
				Details:   in.Details,
			})
			return err
		},
		legs: []leg{{
			owner:       in.UserID,
			direction:   ledger.Credit,
			amount:      breakdown.Net,
			description: fmt.Sprintf("Added money via %s", in.Method),
			method:      in.Method,
			status:      ledger.StatusCompleted,
			meta:        ledger.Metadata{Fee: &breakdown, PaymentDetails: redact(in.Details)},
		}},
	})
	if errors.Is(err, ledger.ErrDuplicateRequest) {
		return e.replayAfterConflict(ctx, in.UserID, in.IdempotencyKey, ledger.KindTopUp, fp)
	}
	if err != nil {
		return Result{}, err
	}

	e.telemetry.committed(ctx, ledger.KindTopUp, in.Amount.Minor())
	e.afterCommit(ctx, []string{in.UserID})
	return Result{
		Wallet:      out.wallets[in.UserID],
		Transaction: out.rows[0],
		Fee:         &breakdown,
		Legs:        out.rows,
	}, nil
}

// WithdrawInput moves money out to an external method.
type WithdrawInput struct {
	UserID         string
	Amount         money.Amount
	Method         string
	Details        map[string]string
	IdempotencyKey string
}

// Withdraw debits immediately and records one pending row. The payout is
// handed to the method after commit; ResolveWithdrawal settles it.
func (e *Engine) Withdraw(ctx context.Context, in WithdrawInput) (res Result, err error) {
	ctx, end := e.telemetry.start(ctx, "withdraw", in.UserID)
	defer func() { end(err) }()

	if err := validateAmount(in.Amount); err != nil {
		return Result{}, err
	}
	if !e.fees.SupportsMethod(in.Method) {
		return Result{}, invalid("paymentMethod", "unsupported payment method %q", in.Method)
	}
	if err := funding.ValidateDetails(in.Method, in.Details); err != nil {
		return Result{}, invalid("paymentDetails", "%v", err)
	}
	fp := fingerprint(in.Amount.String(), in.Method, detailsPart(in.Details))
	if prior, err := e.checkReplay(ctx, in.UserID, in.IdempotencyKey, ledger.KindWithdrawal, fp); err != nil || prior != nil {
		return replayOrFail(prior, err)
	}
	if err := e.precheckBalance(ctx, in.UserID, in.Amount); err != nil {
		return Result{}, err
	}

	ref := e.refs.Next(reference.PrefixWithdrawal)
	out, err := e.post(ctx, posting{
		kind:        ledger.KindWithdrawal,
		initiator:   in.UserID,
		idemKey:     in.IdempotencyKey,
		fingerprint: fp,
		reference:   ref,
		legs: []leg{{
			owner:       in.UserID,
			direction:   ledger.Debit,
			amount:      in.Amount,
			description: fmt.Sprintf("Withdrawal to %s", in.Method),
			method:      in.Method,
			status:      ledger.StatusPending,
			meta:        ledger.Metadata{PaymentDetails: redact(in.Details)},
		}},
	})
	if errors.Is(err, ledger.ErrDuplicateRequest) {
		return e.replayAfterConflict(ctx, in.UserID, in.IdempotencyKey, ledger.KindWithdrawal, fp)
	}
	if err != nil {
		return Result{}, err
	}

	e.telemetry.committed(ctx, ledger.KindWithdrawal, in.Amount.Minor())
	if _, err := e.acquirer.SubmitPayout(context.WithoutCancel(ctx), funding.Authorization{
		Reference: ref,
		OwnerID:   in.UserID,
		Method:    in.Method,
		Amount:    in.Amount,
		Details:   in.Details,
	}); err != nil {
		e.logger.Warn("payout submission failed; withdrawal stays pending",
			slog.String("reference_id", ref), slog.Any("error", err))
	}
	e.afterCommit(ctx, []string{in.UserID})
	return Result{Wallet: out.wallets[in.UserID], Transaction: out.rows[0], Legs: out.rows}, nil
}

// TransferInput moves money between two users.
type TransferInput struct {
	SenderID            string
	RecipientIdentifier string
	Amount              money.Amount
	Note                string
	IdempotencyKey      string
}

// Transfer debits the sender and credits the recipient as two completed rows
// sharing one reference.
func (e *Engine) Transfer(ctx context.Context, in TransferInput) (res Result, err error) {
	ctx, end := e.telemetry.start(ctx, "transfer", in.SenderID)
	defer func() { end(err) }()

	if err := validateAmount(in.Amount); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(in.RecipientIdentifier) == "" {
		return Result{}, invalid("recipientIdentifier", "is required")
	}
	if len(in.Note) > maxNoteLength {
		return Result{}, invalid("note", "must be at most %d characters", maxNoteLength)
	}
	recipient, err := e.directory.Resolve(ctx, in.RecipientIdentifier)
	if errors.Is(err, identity.ErrUserNotFound) {
		return Result{}, ErrRecipientNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("resolve recipient: %w", err)
	}
	if recipient.ID == in.SenderID {
		return Result{}, ErrSelfTransfer
	}
	fp := fingerprint(recipient.ID, in.Amount.String(), in.Note)
	if prior, err := e.checkReplay(ctx, in.SenderID, in.IdempotencyKey, ledger.KindTransfer, fp); err != nil || prior != nil {
		return replayOrFail(prior, err)
	}
	if err := e.precheckBalance(ctx, in.SenderID, in.Amount); err != nil {
		return Result{}, err
	}

	senderName := in.SenderID
	if sender, err := e.directory.FindByID(ctx, in.SenderID); err == nil {
		senderName = displayName(sender)
	}

	ref := e.refs.Next(reference.PrefixTransfer)
	out, err := e.post(ctx, posting{
		kind:        ledger.KindTransfer,
		initiator:   in.SenderID,
		idemKey:     in.IdempotencyKey,
		fingerprint: fp,
		reference:   ref,
		legs: []leg{
			{
				owner:       in.SenderID,
				direction:   ledger.Debit,
				amount:      in.Amount,
				description: "Transfer to " + displayName(recipient),
				method:      walletMethod,
				status:      ledger.StatusCompleted,
				meta:        ledger.Metadata{CounterpartyID: recipient.ID, Note: in.Note},
			},
			{
				owner:       recipient.ID,
				direction:   ledger.Credit,
				amount:      in.Amount,
				description: "Transfer from " + senderName,
				method:      walletMethod,
				status:      ledger.StatusCompleted,
				meta:        ledger.Metadata{CounterpartyID: in.SenderID, Note: in.Note},
			},
		},
	})
	if errors.Is(err, ledger.ErrDuplicateRequest) {
		return e.replayAfterConflict(ctx, in.SenderID, in.IdempotencyKey, ledger.KindTransfer, fp)
	}
	if err != nil {
		return Result{}, err
	}

	e.telemetry.committed(ctx, ledger.KindTransfer, in.Amount.Minor())
	e.afterCommit(ctx, []string{in.SenderID, recipient.ID}, notification.Message{
		Kind:        notification.KindTransferReceived,
		Destination: recipient.ID,
		Reference:   ref,
		Body:        fmt.Sprintf("You received %s from %s", in.Amount, senderName),
	})
	return Result{Wallet: out.wallets[in.SenderID], Transaction: rowOf(out.rows, in.SenderID), Legs: out.rows}, nil
}

// PaymentInput pays a seller for a product.
type PaymentInput struct {
	BuyerID        string
	SellerID       string
	Amount         money.Amount
	ProductID      string
	ProductType    string
	Method         string
	IdempotencyKey string
}

// Pay debits the buyer the full amount and credits the seller the amount
// minus the platform fee for the product type.
// The seller needs no directory entry; its wallet is created on first credit.
func (e *Engine) Pay(ctx context.Context, in PaymentInput) (res Result, err error) {
	ctx, end := e.telemetry.start(ctx, "pay", in.BuyerID)
	defer func() { end(err) }()

	if err := validateAmount(in.Amount); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(in.SellerID) == "" {
		return Result{}, invalid("sellerId", "is required")
	}
	if in.SellerID == in.BuyerID {
		return Result{}, ErrSelfTransfer
	}
	if in.ProductType == "" {
		in.ProductType = defaultProduct
	}
	if in.Method == "" {
		in.Method = walletMethod
	}
	fp := fingerprint(in.SellerID, in.Amount.String(), in.ProductID, in.ProductType, in.Method)
	if prior, err := e.checkReplay(ctx, in.BuyerID, in.IdempotencyKey, ledger.KindPayment, fp); err != nil || prior != nil {
		return replayOrFail(prior, err)
	}
	if err := e.precheckBalance(ctx, in.BuyerID, in.Amount); err != nil {
		return Result{}, err
	}

	breakdown, err := e.fees.Breakdown(in.Amount, fees.OpPayment, in.ProductType)
	if err != nil {
		return Result{}, err
	}
	ref := e.refs.Next(reference.PrefixPayment)
	product := strings.TrimSpace(in.ProductType + " " + in.ProductID)

	out, err := e.post(ctx, posting{
		kind:        ledger.KindPayment,
		initiator:   in.BuyerID,
		idemKey:     in.IdempotencyKey,
		fingerprint: fp,
		reference:   ref,
		legs: []leg{
			{
				owner:       in.BuyerID,
				direction:   ledger.Debit,
				amount:      in.Amount,
				description: "Payment for " + product,
				method:      in.Method,
				status:      ledger.StatusCompleted,
				meta: ledger.Metadata{
					CounterpartyID: in.SellerID,
					Fee:            &breakdown,
					ProductID:      in.ProductID,
					ProductType:    in.ProductType,
				},
			},
			{
				owner:       in.SellerID,
				direction:   ledger.Credit,
				amount:      breakdown.Net,
				description: "Payment received for " + product,
				method:      in.Method,
				status:      ledger.StatusCompleted,
				meta: ledger.Metadata{
					CounterpartyID: in.BuyerID,
					Fee:            &breakdown,
					ProductID:      in.ProductID,
					ProductType:    in.ProductType,
				},
			},
		},
	})
	if errors.Is(err, ledger.ErrDuplicateRequest) {
		return e.replayAfterConflict(ctx, in.BuyerID, in.IdempotencyKey, ledger.KindPayment, fp)
	}
	if err != nil {
		return Result{}, err
	}

	e.telemetry.committed(ctx, ledger.KindPayment, in.Amount.Minor())
	e.afterCommit(ctx, []string{in.BuyerID, in.SellerID}, notification.Message{
		Kind:        notification.KindPaymentReceived,
		Destination: in.SellerID,
		Reference:   ref,
		Body:        fmt.Sprintf("You received %s for %s", breakdown.Net, product),
	})
	return Result{
		Wallet:      out.wallets[in.BuyerID],
		Transaction: rowOf(out.rows, in.BuyerID),
		Fee:         &breakdown,
		Legs:        out.rows,
	}, nil
}

// PurchaseInput buys one marketplace listing at its current price.
type PurchaseInput struct {
	BuyerID        string
	ItemID         string
	IdempotencyKey string
}

// PurchaseResult is the buyer's view of a completed purchase.
type PurchaseResult struct {
	Result
	ItemID         string           `json:"itemId"`
	AmountPaid     money.Amount     `json:"amountPaid"`
	SellerReceived money.Amount     `json:"sellerReceived"`
	PlatformFee    money.Amount     `json:"platformFee"`
	Reference      string           `json:"referenceId"`
	Sale           marketplace.Sale `json:"sale"`
}

// Purchase pays the item's seller and, in the same unit, flips the item to
// sold and records the sale. When two buyers race for one item exactly one
// succeeds; the other gets ErrItemNotAvailable and nothing is written for it.
func (e *Engine) Purchase(ctx context.Context, in PurchaseInput) (res PurchaseResult, err error) {
	ctx, end := e.telemetry.start(ctx, "purchase", in.BuyerID)
	defer func() { end(err) }()

	if e.catalog == nil {
		return PurchaseResult{}, errors.New("marketplace catalog is not configured")
	}
	if strings.TrimSpace(in.ItemID) == "" {
		return PurchaseResult{}, invalid("itemId", "is required")
	}
	fp := fingerprint(in.ItemID)
	if prior, err := e.checkReplay(ctx, in.BuyerID, in.IdempotencyKey, ledger.KindPurchase, fp); err != nil || prior != nil {
		r, err := replayOrFail(prior, err)
		return purchaseFromResult(r), err
	}

	item, err := e.catalog.Item(ctx, in.ItemID)
	if err != nil {
		return PurchaseResult{}, err
	}
	if item.Status != marketplace.ItemAvailable {
		return PurchaseResult{}, marketplace.ErrItemNotAvailable
	}
	if item.SellerID == in.BuyerID {
		return PurchaseResult{}, ErrSelfTransfer
	}
	if err := validateAmount(item.Price); err != nil {
		return PurchaseResult{}, fmt.Errorf("item %s has unusable price: %w", item.ID, err)
	}
	if err := e.precheckBalance(ctx, in.BuyerID, item.Price); err != nil {
		return PurchaseResult{}, err
	}

	breakdown, err := e.fees.Breakdown(item.Price, fees.OpMarketplaceSale, "")
	if err != nil {
		return PurchaseResult{}, err
	}
	ref := e.refs.Next(reference.PrefixPurchase)
	meta := func(counterparty string) ledger.Metadata {
		return ledger.Metadata{
			CounterpartyID: counterparty,
			Fee:            &breakdown,
			ProductID:      item.ID,
			ProductType:    fees.ProductTypeMarketplace,
		}
	}

	var sale marketplace.Sale
	out, err := e.post(ctx, posting{
		kind:        ledger.KindPurchase,
		initiator:   in.BuyerID,
		idemKey:     in.IdempotencyKey,
		fingerprint: fp,
		reference:   ref,
		items:       []string{item.ID},
		legs: []leg{
			{
				owner:       in.BuyerID,
				direction:   ledger.Debit,
				amount:      item.Price,
				description: "Purchased " + item.Title,
				method:      walletMethod,
				status:      ledger.StatusCompleted,
				meta:        meta(item.SellerID),
			},
			{
				owner:       item.SellerID,
				direction:   ledger.Credit,
				amount:      breakdown.Net,
				description: "Sold " + item.Title,
				method:      walletMethod,
				status:      ledger.StatusCompleted,
				meta:        meta(in.BuyerID),
			},
		},
		before: func(ctx context.Context, u storage.Unit) error {
			current, err := u.Inventory().Lock(ctx, item.ID)
			if err != nil {
				return err
			}
			if current.Status != marketplace.ItemAvailable {
				return marketplace.ErrItemNotAvailable
			}
			if current.Price != item.Price || current.SellerID != item.SellerID {
				return marketplace.ErrPriceChanged
			}
			return nil
		},
		after: func(ctx context.Context, u storage.Unit, _ []ledger.Transaction) error {
			if err := u.Inventory().MarkSold(ctx, item.ID); err != nil {
				return err
			}
			recorded, err := u.Inventory().RecordSale(ctx, marketplace.Sale{
				ItemID:    item.ID,
				BuyerID:   in.BuyerID,
				SellerID:  item.SellerID,
				Amount:    item.Price,
				Fee:       breakdown.Fee,
				Status:    marketplace.SaleStatusCompleted,
				Reference: ref,
			})
			sale = recorded
			return err
		},
	})
	if errors.Is(err, ledger.ErrDuplicateRequest) {
		r, err := e.replayAfterConflict(ctx, in.BuyerID, in.IdempotencyKey, ledger.KindPurchase, fp)
		return purchaseFromResult(r), err
	}
	if err != nil {
		return PurchaseResult{}, err
	}

	e.telemetry.committed(ctx, ledger.KindPurchase, item.Price.Minor())
	e.afterCommit(ctx, []string{in.BuyerID, item.SellerID}, notification.Message{
		Kind:        notification.KindItemSold,
		Destination: item.SellerID,
		Reference:   ref,
		Body:        fmt.Sprintf("%s sold for %s, you received %s", item.Title, item.Price, breakdown.Net),
	})

	r := Result{
		Wallet:      out.wallets[in.BuyerID],
		Transaction: rowOf(out.rows, in.BuyerID),
		Fee:         &breakdown,
		Legs:        out.rows,
	}
	res = purchaseFromResult(r)
	res.Sale = sale
	return res, nil
}

func purchaseFromResult(r Result) PurchaseResult {
	res := PurchaseResult{Result: r, Reference: r.Transaction.Reference, ItemID: r.Transaction.Metadata.ProductID}
	if r.Fee != nil {
		res.AmountPaid = r.Fee.Gross
		res.SellerReceived = r.Fee.Net
		res.PlatformFee = r.Fee.Fee
	}
	return res
}

// ResolveInput settles a pending withdrawal.
type ResolveInput struct {
	TransactionID string
	Status        ledger.Status
	Reason        string
}

// ResolveResult is the outcome of settling a withdrawal.
type ResolveResult struct {
	Transaction ledger.Transaction  `json:"transaction"`
	Reversal    *ledger.Transaction `json:"reversal,omitempty"`
	Wallet      wallet.Wallet       `json:"wallet"`
}

// ResolveWithdrawal moves a pending withdrawal to completed or failed. A
// failed withdrawal also credits the amount back through a completed
// withdrawal_reversal row carrying the same reference, so the balance keeps
// matching the owner's rows.
func (e *Engine) ResolveWithdrawal(ctx context.Context, in ResolveInput) (res ResolveResult, err error) {
	ctx, end := e.telemetry.start(ctx, "resolve_withdrawal", "")
	defer func() { end(err) }()

	if in.Status != ledger.StatusCompleted && in.Status != ledger.StatusFailed {
		return ResolveResult{}, invalid("status", "must be %q or %q", ledger.StatusCompleted, ledger.StatusFailed)
	}
	if len(in.Reason) > maxReasonLength {
		return ResolveResult{}, invalid("reason", "must be at most %d characters", maxReasonLength)
	}
	original, err := e.ledger.Get(ctx, in.TransactionID)
	if err != nil {
		return ResolveResult{}, err
	}
	if original.Kind != ledger.KindWithdrawal {
		return ResolveResult{}, fmt.Errorf("%w: only withdrawals can be resolved", ledger.ErrInvalidTransition)
	}

	var legs []leg
	if in.Status == ledger.StatusFailed {
		legs = append(legs, leg{
			owner:       original.OwnerID,
			direction:   ledger.Credit,
			amount:      original.Amount,
			description: "Withdrawal reversed",
			method:      original.PaymentMethod,
			status:      ledger.StatusCompleted,
			meta:        ledger.Metadata{Reason: in.Reason},
		})
	}

	var updated ledger.Transaction
	out, err := e.post(ctx, posting{
		kind:      ledger.KindWithdrawalReversal,
		initiator: original.OwnerID,
		reference: original.Reference,
		legs:      legs,
		before: func(ctx context.Context, u storage.Unit) error {
			t, err := u.Ledger().SetStatus(ctx, original.ID, in.Status)
			updated = t
			return err
		},
	})
	if err != nil {
		return ResolveResult{}, err
	}

	res = ResolveResult{Transaction: updated, Wallet: out.wallets[original.OwnerID]}
	if len(out.rows) > 0 {
		reversal := out.rows[0]
		res.Reversal = &reversal
	}

	body := fmt.Sprintf("Your withdrawal of %s was completed", original.Amount)
	if in.Status == ledger.StatusFailed {
		body = fmt.Sprintf("Your withdrawal of %s failed and was refunded", original.Amount)
	}
	e.afterCommit(ctx, []string{original.OwnerID}, notification.Message{
		Kind:        notification.KindWithdrawal,
		Destination: original.OwnerID,
		Reference:   original.Reference,
		Body:        body,
	})
	return res, nil
}

// Reconciliation compares a stored balance with the owner's ledger rows.
type Reconciliation struct {
	OwnerID    string       `json:"ownerId"`
	Balance    money.Amount `json:"balance"`
	Credits    money.Amount `json:"credits"`
	Debits     money.Amount `json:"debits"`
	Consistent bool         `json:"consistent"`
}

// Reconcile checks balance == credits - debits for owner.
func (e *Engine) Reconcile(ctx context.Context, owner string) (Reconciliation, error) {
	w, err := e.wallets.Get(ctx, owner)
	if err != nil && !errors.Is(err, wallet.ErrNotFound) {
		return Reconciliation{}, err
	}
	totals, err := e.ledger.Totals(ctx, owner)
	if err != nil {
		return Reconciliation{}, err
	}
	rec := Reconciliation{
		OwnerID: owner,
		Balance: w.Balance,
		Credits: totals.Credits,
		Debits:  totals.Debits,
	}
	rec.Consistent = rec.Balance == totals.Net()
	if !rec.Consistent {
		e.logger.Error("wallet out of balance with ledger",
			slog.String("owner_id", owner),
			slog.String("balance", rec.Balance.String()),
			slog.String("ledger_net", totals.Net().String()),
		)
	}
	return rec, nil
}

// Wallet returns the owner's wallet, or a zero one if it was never touched.
func (e *Engine) Wallet(ctx context.Context, owner string) (wallet.Wallet, error) {
	w, err := e.balances.Get(ctx, owner)
	if errors.Is(err, wallet.ErrNotFound) {
		return wallet.Wallet{OwnerID: owner}, nil
	}
	return w, err
}

// History lists the owner's rows, newest first.
func (e *Engine) History(ctx context.Context, owner string, page ledger.Page) ([]ledger.Transaction, error) {
	return e.ledger.History(ctx, owner, page)
}

func replayOrFail(prior *Result, err error) (Result, error) {
	if err != nil {
		return Result{}, err
	}
	return *prior, ledger.ErrDuplicateRequest
}

// redact keeps payment details useful for support without storing full
// card numbers.
func redact(details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	out := make(map[string]string, len(details))
	for k, v := range details {
		if k == "cardNumber" || k == "accountNumber" {
			digits := strings.ReplaceAll(v, " ", "")
			if len(digits) > 4 {
				v = strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
			}
		}
		out[k] = v
	}
	return out
}
