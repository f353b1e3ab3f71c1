package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bazaarpay/bazaarpay/internal/fees"
	"github.com/bazaarpay/bazaarpay/internal/funding"
	"github.com/bazaarpay/bazaarpay/internal/ledger"
	"github.com/bazaarpay/bazaarpay/internal/marketplace"
	"github.com/bazaarpay/bazaarpay/internal/middleware"
	"github.com/bazaarpay/bazaarpay/internal/money"
	"github.com/bazaarpay/bazaarpay/internal/response"
	"github.com/bazaarpay/bazaarpay/internal/wallet"
)

// Handler exposes the engine over HTTP. Every route expects JWTAuth to have
// set the caller's id.
type Handler struct {
	engine   *Engine
	validate *validator.Validate
}

// NewHandler constructs a transfer handler.
func NewHandler(engine *Engine) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{engine: engine, validate: v}
}

type addMoneyRequest struct {
	Amount         money.Amount      `json:"amount" validate:"required"`
	PaymentMethod  string            `json:"paymentMethod" validate:"required"`
	PaymentDetails map[string]string `json:"paymentDetails"`
}

type withdrawRequest struct {
	Amount         money.Amount      `json:"amount" validate:"required"`
	PaymentMethod  string            `json:"paymentMethod" validate:"required"`
	PaymentDetails map[string]string `json:"paymentDetails"`
}

type transferRequest struct {
	RecipientIdentifier string       `json:"recipientIdentifier" validate:"required"`
	Amount              money.Amount `json:"amount" validate:"required"`
	Note                string       `json:"note" validate:"max=280"`
}

type paymentRequest struct {
	SellerID      string       `json:"sellerId" validate:"required"`
	Amount        money.Amount `json:"amount" validate:"required"`
	ProductID     string       `json:"productId"`
	ProductType   string       `json:"productType"`
	PaymentMethod string       `json:"paymentMethod"`
}

type resolveRequest struct {
	Status string `json:"status" validate:"required,oneof=completed failed"`
	Reason string `json:"reason" validate:"max=500"`
}

// AddMoney handles POST /wallet/add-money.
func (h *Handler) AddMoney(c *fiber.Ctx) error {
	var req addMoneyRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	res, err := h.engine.TopUp(c.UserContext(), TopUpInput{
		UserID:         middleware.UserID(c),
		Amount:         req.Amount,
		Method:         req.PaymentMethod,
		Details:        req.PaymentDetails,
		IdempotencyKey: idempotencyKey(c),
	})
	return respond(c, res, err)
}

// Withdraw handles POST /wallet/withdraw.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req withdrawRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	res, err := h.engine.Withdraw(c.UserContext(), WithdrawInput{
		UserID:         middleware.UserID(c),
		Amount:         req.Amount,
		Method:         req.PaymentMethod,
		Details:        req.PaymentDetails,
		IdempotencyKey: idempotencyKey(c),
	})
	return respond(c, res, err)
}

// Transfer handles POST /wallet/transfer.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	res, err := h.engine.Transfer(c.UserContext(), TransferInput{
		SenderID:            middleware.UserID(c),
		RecipientIdentifier: req.RecipientIdentifier,
		Amount:              req.Amount,
		Note:                req.Note,
		IdempotencyKey:      idempotencyKey(c),
	})
	return respond(c, res, err)
}

// MakePayment handles POST /wallet/make-payment.
func (h *Handler) MakePayment(c *fiber.Ctx) error {
	var req paymentRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	res, err := h.engine.Pay(c.UserContext(), PaymentInput{
		BuyerID:        middleware.UserID(c),
		SellerID:       req.SellerID,
		Amount:         req.Amount,
		ProductID:      req.ProductID,
		ProductType:    req.ProductType,
		Method:         req.PaymentMethod,
		IdempotencyKey: idempotencyKey(c),
	})
	return respond(c, res, err)
}

// Purchase handles POST /marketplace/items/:id/purchase.
func (h *Handler) Purchase(c *fiber.Ctx) error {
	res, err := h.engine.Purchase(c.UserContext(), PurchaseInput{
		BuyerID:        middleware.UserID(c),
		ItemID:         c.Params("id"),
		IdempotencyKey: idempotencyKey(c),
	})
	return respond(c, res, err)
}

// Wallet handles GET /wallet.
func (h *Handler) Wallet(c *fiber.Ctx) error {
	w, err := h.engine.Wallet(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return toHTTPError(err)
	}
	return response.OK(c, http.StatusOK, fiber.Map{"wallet": w})
}

// Transactions handles GET /wallet/transactions.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	page := ledger.Page{Limit: c.QueryInt("limit"), Offset: c.QueryInt("offset")}.Normalize()
	rows, err := h.engine.History(c.UserContext(), middleware.UserID(c), page)
	if err != nil {
		return toHTTPError(err)
	}
	return response.OK(c, http.StatusOK, fiber.Map{
		"transactions": rows,
		"limit":        page.Limit,
		"offset":       page.Offset,
	})
}

// ResolveWithdrawal handles PATCH /admin/transactions/:id/status.
func (h *Handler) ResolveWithdrawal(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.validate.Var(id, "required,uuid"); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid transaction id")
	}
	var req resolveRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	res, err := h.engine.ResolveWithdrawal(c.UserContext(), ResolveInput{
		TransactionID: id,
		Status:        ledger.Status(req.Status),
		Reason:        req.Reason,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return response.OK(c, http.StatusOK, res)
}

// Reconcile handles GET /admin/wallets/:ownerId/reconcile.
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	rec, err := h.engine.Reconcile(c.UserContext(), c.Params("ownerId"))
	if err != nil {
		return toHTTPError(err)
	}
	return response.OK(c, http.StatusOK, rec)
}

// bind parses and validates the JSON body into dst.
func (h *Handler) bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		if errors.Is(err, money.ErrPrecision) || errors.Is(err, money.ErrOutOfRange) {
			return fiber.NewError(http.StatusBadRequest, "amount: "+err.Error())
		}
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fiber.NewError(http.StatusBadRequest, describe(verrs[0]))
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fe.Field() + " is invalid"
	}
}

func idempotencyKey(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get(middleware.IdempotencyKeyHeader))
}

// respond writes a money-movement result. A duplicate request replays the
// first result with 200 instead of failing.
func respond(c *fiber.Ctx, res any, err error) error {
	switch {
	case errors.Is(err, ledger.ErrDuplicateRequest):
		c.Set(middleware.ReplayedHeader, "true")
		return response.OK(c, http.StatusOK, res)
	case err != nil:
		return toHTTPError(err)
	}
	return response.OK(c, http.StatusOK, res)
}

// toHTTPError maps engine errors onto statuses. Unknown errors pass through
// to the app's error handler, which logs them and answers 500.
func toHTTPError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return fiber.NewError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, "insufficient balance")
	case errors.Is(err, ErrSelfTransfer):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, fees.ErrUnsupportedMethod):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRecipientNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, marketplace.ErrItemNotFound):
		return fiber.NewError(http.StatusNotFound, "item not found")
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "transaction not found")
	case errors.Is(err, marketplace.ErrItemNotAvailable):
		return fiber.NewError(http.StatusConflict, "item is no longer available")
	case errors.Is(err, marketplace.ErrPriceChanged):
		return fiber.NewError(http.StatusConflict, "item changed, please review it again")
	case errors.Is(err, ledger.ErrInvalidTransition):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrKeyReused):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, funding.ErrDeclined):
		return fiber.NewError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(http.StatusServiceUnavailable, "request timed out, please retry")
	default:
		return err
	}
}
