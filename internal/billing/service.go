package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tapdeckhq/tapdeck/internal/idgen"
	"github.com/tapdeckhq/tapdeck/internal/metrics"
	"github.com/tapdeckhq/tapdeck/internal/traces"
)

// Service provides checkout business logic: session initiation, price
// resolution, and session reconciliation.
type Service struct {
	store    Store
	provider Provider
	accounts AccountDirectory
	catalog  *Catalog
	logger   *slog.Logger
}

// NewService creates a new billing service.
func NewService(store Store, provider Provider, accounts AccountDirectory, catalog *Catalog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		provider: provider,
		accounts: accounts,
		catalog:  catalog,
		logger:   logger,
	}
}

// CreateSession opens a checkout session for one catalog price.
// quantity 0 means "not provided" and defaults to 1. The session is
// ephemeral provider state; nothing is persisted here, and provider
// failures are not retried internally.
func (s *Service) CreateSession(ctx context.Context, priceID string, quantity int64) (string, error) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return "", fmt.Errorf("%w: priceId is required", ErrValidation)
	}
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 1 {
		return "", fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}

	ctx, span := traces.StartSpan(ctx, "billing.CreateSession", traces.PriceID(priceID))
	defer span.End()

	clientSecret, err := s.provider.CreateCheckoutSession(ctx, priceID, quantity)
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues("error").Inc()
		return "", err
	}

	metrics.CheckoutSessionsTotal.WithLabelValues("created").Inc()
	return clientSecret, nil
}

// LookupPrices resolves a set of price ids to display metadata.
// Ids are deduplicated before querying. An id the provider does not know is
// omitted from the result; silent partial success is the designed behavior.
// Only an upstream failure produces an error.
func (s *Service) LookupPrices(ctx context.Context, priceIDs []string) (map[string]Price, error) {
	if len(priceIDs) == 0 {
		return nil, fmt.Errorf("%w: priceIds is required", ErrValidation)
	}

	seen := make(map[string]struct{}, len(priceIDs))
	ids := make([]string, 0, len(priceIDs))
	for _, id := range priceIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("%w: priceIds must not contain blank entries", ErrValidation)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	ctx, span := traces.StartSpan(ctx, "billing.LookupPrices")
	defer span.End()

	result := make(map[string]Price, len(ids))
	for _, id := range ids {
		price, err := s.provider.GetPrice(ctx, id)
		if err != nil {
			if errors.Is(err, ErrPriceNotFound) {
				metrics.PriceLookupsTotal.WithLabelValues("missing").Inc()
				s.logger.Debug("price lookup miss", "price_id", id)
				continue
			}
			metrics.PriceLookupsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.PriceLookupsTotal.WithLabelValues("resolved").Inc()
		result[id] = *price
	}
	return result, nil
}

// Reconcile converts a completed checkout session into durable subscription
// state exactly once.
//
// The processed-session ledger is checked first (idempotent replay), then
// canonical state is fetched from the provider. Completed sessions map their
// price to a plan, resolve the owning account, upsert the subscription, and
// finally insert the ledger row. The ledger insert is the only exclusive
// step: when concurrent calls race on one session id, the first successful
// insert wins and every loser returns the winner's stored result.
func (s *Service) Reconcile(ctx context.Context, sessionID string) (*ReconcileResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrValidation)
	}

	ctx, span := traces.StartSpan(ctx, "billing.Reconcile", traces.SessionID(sessionID))
	defer span.End()

	timer := time.Now()
	defer func() {
		metrics.ReconcileDuration.Observe(time.Since(timer).Seconds())
	}()

	// Replay path: refreshes, double-clicks, and retried requests land here.
	if ps, err := s.store.GetProcessedSession(ctx, sessionID); err == nil {
		metrics.ReconcilesTotal.WithLabelValues("replayed").Inc()
		return s.resultFromLedger(ps), nil
	} else if !errors.Is(err, ErrProcessedNotFound) {
		return nil, fmt.Errorf("check ledger: %w", err)
	}

	sess, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		metrics.ReconcilesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	switch sess.Status {
	case SessionExpired:
		// Terminal: re-calling with this id can never complete the flow.
		metrics.ReconcilesTotal.WithLabelValues("expired").Inc()
		return nil, fmt.Errorf("%w: %s", ErrSessionExpired, sessionID)
	case SessionOpen:
		// Payment not finished. No ledger write, so a later call with the
		// same id can still complete the flow.
		metrics.ReconcilesTotal.WithLabelValues("pending").Inc()
		return &ReconcileResult{Status: SessionOpen, SubscriptionUpdated: false}, nil
	}

	plan, ok := s.catalog.ByPriceID(sess.PriceID)
	if !ok {
		metrics.ReconcilesTotal.WithLabelValues("error").Inc()
		s.logger.Error("reconcile: session price has no catalog plan",
			"session_id", sessionID, "price_id", sess.PriceID)
		return nil, fmt.Errorf("%w: price %q", ErrUnmappedPrice, sess.PriceID)
	}

	span.SetAttributes(traces.PlanID(plan.ID))

	account, err := s.accounts.ResolveByEmail(ctx, sess.CustomerEmail)
	if err != nil {
		metrics.ReconcilesTotal.WithLabelValues("error").Inc()
		s.logger.Error("reconcile: failed to resolve account for session",
			"session_id", sessionID, "customer_email", sess.CustomerEmail, "error", err)
		return nil, ErrAccountResolution
	}

	span.SetAttributes(traces.AccountID(account.ID))

	// Subscription upsert is safe to duplicate: the final row is a function
	// of the resolved plan, not of how many reconcilers ran.
	now := time.Now()
	sub := &Subscription{
		ID:                     idgen.WithPrefix("sub_"),
		AccountID:              account.ID,
		PlanID:                 plan.ID,
		Status:                 SubscriptionActive,
		ProviderSubscriptionID: sess.SubscriptionID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		metrics.ReconcilesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}

	if err := s.accounts.GrantProfileSlots(ctx, account.ID, plan.ProfileSlots); err != nil {
		metrics.ReconcilesTotal.WithLabelValues("error").Inc()
		s.logger.Error("reconcile: failed to grant profile slots",
			"session_id", sessionID, "account_id", account.ID, "error", err)
		return nil, ErrAccountResolution
	}

	ps := &ProcessedSession{
		SessionID:           sessionID,
		PlanID:              plan.ID,
		SubscriptionUpdated: true,
		CustomerEmail:       sess.CustomerEmail,
		CreatedAt:           now,
	}
	if err := s.store.InsertProcessedSession(ctx, ps); err != nil {
		if errors.Is(err, ErrSessionProcessed) {
			// Lost the insert race. Discard our in-flight outcome and
			// return the winner's recorded result; the subscription rows
			// already converge because the upsert is keyed per account.
			winner, gerr := s.store.GetProcessedSession(ctx, sessionID)
			if gerr != nil {
				return nil, fmt.Errorf("read winning ledger row: %w", gerr)
			}
			metrics.ReconcilesTotal.WithLabelValues("race_lost").Inc()
			return s.resultFromLedger(winner), nil
		}
		metrics.ReconcilesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("insert ledger row: %w", err)
	}

	metrics.ReconcilesTotal.WithLabelValues("completed").Inc()
	s.logger.Info("reconciled checkout session",
		"session_id", sessionID, "plan_id", plan.ID, "account_id", account.ID)
	return s.resultFromLedger(ps), nil
}

// resultFromLedger denormalizes a ledger row into the response payload.
// Plan display fields come from the immutable catalog, so replays are
// byte-identical to the first response.
func (s *Service) resultFromLedger(ps *ProcessedSession) *ReconcileResult {
	result := &ReconcileResult{
		Status:              SessionComplete,
		SubscriptionUpdated: ps.SubscriptionUpdated,
		CustomerEmail:       ps.CustomerEmail,
	}
	if plan, ok := s.catalog.ByID(ps.PlanID); ok {
		result.PlanName = plan.Name
		result.PlanCategory = string(plan.Category)
	}
	return result
}
