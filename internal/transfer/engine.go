// Package transfer moves money between wallets. Every operation validates its
// input, then commits all of its balance changes, ledger rows and item
// changes in one atomic unit, and only then runs side effects such as
// notifications.
package transfer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/blake2b"

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

const sideEffectTimeout = 2 * time.Second

// Invalidator drops cached balances after a commit.
type Invalidator interface {
	Invalidate(ctx context.Context, owners ...string) error
}

// Deps wires an Engine.
type Deps struct {
	Runner    storage.Runner
	Wallets   wallet.Reader
	Ledger    ledger.Reader
	Catalog   marketplace.Catalog
	Directory identity.Directory
	Fees      *fees.Calculator
	Refs      *reference.Generator

	// Balances serves the read endpoints and may be cached. Defaults to Wallets.
	Balances wallet.Reader
	Cache    Invalidator
	Acquirer funding.Acquirer
	Notifier notification.Notifier
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Meter    metric.Meter
}

// Engine is the only writer of wallets and ledger rows.
type Engine struct {
	runner    storage.Runner
	wallets   wallet.Reader
	balances  wallet.Reader
	ledger    ledger.Reader
	catalog   marketplace.Catalog
	directory identity.Directory
	fees      *fees.Calculator
	refs      *reference.Generator
	cache     Invalidator
	acquirer  funding.Acquirer
	notifier  notification.Notifier
	logger    *slog.Logger
	telemetry *telemetry
}

// NewEngine validates deps and builds an engine.
func NewEngine(d Deps) (*Engine, error) {
	switch {
	case d.Runner == nil:
		return nil, errors.New("transfer: storage runner is required")
	case d.Wallets == nil:
		return nil, errors.New("transfer: wallet reader is required")
	case d.Ledger == nil:
		return nil, errors.New("transfer: ledger reader is required")
	case d.Directory == nil:
		return nil, errors.New("transfer: identity directory is required")
	case d.Fees == nil:
		return nil, errors.New("transfer: fee calculator is required")
	case d.Refs == nil:
		return nil, errors.New("transfer: reference generator is required")
	}
	if d.Balances == nil {
		d.Balances = d.Wallets
	}
	if d.Acquirer == nil {
		d.Acquirer = funding.StaticAcquirer{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}
	tel, err := newTelemetry(d.Tracer, d.Meter)
	if err != nil {
		return nil, fmt.Errorf("transfer: telemetry: %w", err)
	}
	return &Engine{
		runner:    d.Runner,
		wallets:   d.Wallets,
		balances:  d.Balances,
		ledger:    d.Ledger,
		catalog:   d.Catalog,
		directory: d.Directory,
		fees:      d.Fees,
		refs:      d.Refs,
		cache:     d.Cache,
		acquirer:  d.Acquirer,
		notifier:  d.Notifier,
		logger:    d.Logger,
		telemetry: tel,
	}, nil
}

// Result is the outcome of a money movement as seen by its initiator.
type Result struct {
	Wallet      wallet.Wallet      `json:"wallet"`
	Transaction ledger.Transaction `json:"transaction"`
	Fee         *fees.Breakdown    `json:"feeBreakdown,omitempty"`
	// Legs holds every row of the operation, debits first.
	Legs     []ledger.Transaction `json:"-"`
	Replayed bool                 `json:"-"`
}

// leg is one wallet mutation plus the ledger row recording it.
type leg struct {
	owner       string
	direction   ledger.Direction
	amount      money.Amount
	description string
	method      string
	status      ledger.Status
	meta        ledger.Metadata
}

// posting describes one atomic unit. before runs after the idempotency claim
// and before any leg; after runs once every leg has landed. Either hook
// failing aborts the whole unit.
type posting struct {
	kind        ledger.Kind
	initiator   string
	idemKey     string
	fingerprint string
	reference   string
	legs        []leg
	owners      []string
	items       []string
	before      func(ctx context.Context, u storage.Unit) error
	after       func(ctx context.Context, u storage.Unit, rows []ledger.Transaction) error
}

type postResult struct {
	rows    []ledger.Transaction
	wallets map[string]wallet.Wallet
}

// post commits p's legs atomically. Debits are applied before credits so a
// short balance fails the unit before anything is credited.
func (e *Engine) post(ctx context.Context, p posting) (postResult, error) {
	owners := append([]string{p.initiator}, p.owners...)
	for _, l := range p.legs {
		owners = append(owners, l.owner)
	}

	ordered := make([]leg, 0, len(p.legs))
	for _, l := range p.legs {
		if l.direction == ledger.Debit {
			ordered = append(ordered, l)
		}
	}
	for _, l := range p.legs {
		if l.direction == ledger.Credit {
			ordered = append(ordered, l)
		}
	}

	var out postResult
	err := e.runner.Run(ctx, storage.LockSet{Owners: owners, Items: p.items}, func(ctx context.Context, u storage.Unit) error {
		out = postResult{wallets: make(map[string]wallet.Wallet, len(owners))}

		if p.idemKey != "" {
			claim := ledger.Claim{Reference: p.reference, Kind: p.kind, Fingerprint: p.fingerprint}
			if err := u.Ledger().ClaimKey(ctx, p.initiator, p.idemKey, claim); err != nil {
				return err
			}
		}
		if p.before != nil {
			if err := p.before(ctx, u); err != nil {
				return err
			}
		}

		for _, l := range ordered {
			var (
				w   wallet.Wallet
				err error
			)
			if l.direction == ledger.Debit {
				w, err = u.Wallets().Debit(ctx, l.owner, l.amount)
			} else {
				w, err = u.Wallets().Credit(ctx, l.owner, l.amount)
			}
			if err != nil {
				return err
			}
			out.wallets[l.owner] = w

			row, err := u.Ledger().Append(ctx, ledger.Transaction{
				OwnerID:       l.owner,
				Direction:     l.direction,
				Kind:          p.kind,
				Amount:        l.amount,
				Description:   l.description,
				PaymentMethod: l.method,
				Reference:     p.reference,
				Status:        l.status,
				Metadata:      l.meta,
			})
			if err != nil {
				return err
			}
			out.rows = append(out.rows, row)
		}

		if p.after != nil {
			if err := p.after(ctx, u, out.rows); err != nil {
				return err
			}
		}

		if _, ok := out.wallets[p.initiator]; !ok {
			w, err := u.Wallets().GetOrCreate(ctx, p.initiator)
			if err != nil {
				return err
			}
			out.wallets[p.initiator] = w
		}
		return nil
	})
	if err != nil {
		return postResult{}, err
	}

	e.logger.Info("transfer committed",
		slog.String("kind", string(p.kind)),
		slog.String("reference_id", p.reference),
		slog.String("initiator", p.initiator),
		slog.Int("legs", len(out.rows)),
	)
	return out, nil
}

// rowOf returns the first row owned by owner.
func rowOf(rows []ledger.Transaction, owner string) ledger.Transaction {
	for _, r := range rows {
		if r.OwnerID == owner {
			return r
		}
	}
	return ledger.Transaction{}
}

// checkReplay returns the stored result when owner already used key for the
// same kind of request with the same fingerprint, and ErrKeyReused when the
// key belongs to a different request. It returns a nil result and no error
// when the key is fresh.
func (e *Engine) checkReplay(ctx context.Context, owner, key string, kind ledger.Kind, fp string) (*Result, error) {
	if key == "" {
		return nil, nil
	}
	claim, err := e.ledger.LookupKey(ctx, owner, key)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !claim.Matches(kind, fp) {
		e.logger.Warn("idempotency key reused",
			slog.String("owner_id", owner),
			slog.String("claimed_kind", string(claim.Kind)),
			slog.String("kind", string(kind)),
			slog.String("reference_id", claim.Reference),
		)
		return nil, ledger.ErrKeyReused
	}
	res, err := e.replay(ctx, owner, claim.Reference)
	if err != nil {
		return nil, err
	}
	attrs := []any{slog.String("owner_id", owner), slog.String("reference_id", claim.Reference)}
	if created, ok := reference.Time(claim.Reference); ok {
		attrs = append(attrs, slog.Duration("age", time.Since(created)))
	}
	e.logger.Info("idempotent replay", attrs...)
	return &res, nil
}

// replayAfterConflict rebuilds the stored result once a unit lost the
// idempotency claim to a concurrent request.
func (e *Engine) replayAfterConflict(ctx context.Context, owner, key string, kind ledger.Kind, fp string) (Result, error) {
	res, err := e.checkReplay(ctx, owner, key, kind, fp)
	if err != nil {
		return Result{}, err
	}
	if res == nil {
		return Result{}, fmt.Errorf("idempotency key %q claimed without a reference", key)
	}
	return *res, ledger.ErrDuplicateRequest
}

func (e *Engine) replay(ctx context.Context, owner, ref string) (Result, error) {
	rows, err := e.ledger.ByReference(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	w, err := e.wallets.Get(ctx, owner)
	if err != nil && !errors.Is(err, wallet.ErrNotFound) {
		return Result{}, err
	}
	if errors.Is(err, wallet.ErrNotFound) {
		w = wallet.Wallet{OwnerID: owner}
	}
	tx := rowOf(rows, owner)
	return Result{
		Wallet:      w,
		Transaction: tx,
		Fee:         tx.Metadata.Fee,
		Legs:        rows,
		Replayed:    true,
	}, nil
}

// afterCommit invalidates cached balances and delivers notifications. It runs
// detached from the request context so a client disconnect does not drop
// them, and failures are logged rather than returned.
func (e *Engine) afterCommit(ctx context.Context, owners []string, msgs ...notification.Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, owners...); err != nil {
			e.logger.Warn("balance cache invalidation failed", slog.Any("owners", owners), slog.Any("error", err))
		}
	}
	for _, msg := range msgs {
		if msg.OccurredAt.IsZero() {
			msg.OccurredAt = time.Now().UTC()
		}
		if err := e.notifier.Send(ctx, msg); err != nil {
			e.logger.Warn("notification delivery failed",
				slog.String("kind", msg.Kind),
				slog.String("reference_id", msg.Reference),
				slog.Any("error", err),
			)
		}
	}
}

// fingerprint identifies the fields of a request that decide its effect.
func fingerprint(parts ...string) string {
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

// detailsPart renders payment details in a stable order for fingerprint.
func detailsPart(details map[string]string) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(details[k])
		b.WriteByte(';')
	}
	return b.String()
}

func (e *Engine) precheckBalance(ctx context.Context, owner string, amount money.Amount) error {
	w, err := e.wallets.Get(ctx, owner)
	if errors.Is(err, wallet.ErrNotFound) {
		return wallet.ErrInsufficientFunds
	}
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	if w.Balance < amount {
		return wallet.ErrInsufficientFunds
	}
	return nil
}

func validateAmount(amount money.Amount) error {
	if amount <= 0 {
		return invalid("amount", "must be greater than zero")
	}
	if amount > money.Max {
		return invalid("amount", "must not exceed %s", money.Max)
	}
	return nil
}

func displayName(u identity.User) string {
	switch {
	case u.Username != "":
		return u.Username
	case u.Email != "":
		return u.Email
	case u.Phone != "":
		return u.Phone
	default:
		return u.ID
	}
}
