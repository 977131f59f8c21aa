package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/autoscripty/internal/constants"
	"github.com/autoscripty/internal/domain"
	"github.com/autoscripty/internal/metrics"
	"github.com/autoscripty/internal/validation"
)

// PostgREST error code for an expired or invalid JWT
const codeJWTExpired = "PGRST301"

// scriptService implements the ScriptService interface
type scriptService struct {
	store   domain.ScriptStore
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewScriptService creates a new script submission service
func NewScriptService(store domain.ScriptStore, m *metrics.Metrics, logger *slog.Logger) domain.ScriptService {
	return newScriptService(store, m, logger, time.Now)
}

func newScriptService(store domain.ScriptStore, m *metrics.Metrics, logger *slog.Logger, now func() time.Time) *scriptService {
	if logger == nil {
		logger = slog.Default()
	}
	return &scriptService{store: store, metrics: m, logger: logger, now: now}
}

// Submit validates input, checks the session and stores the trimmed script.
// Validation always runs first, so an invalid payload is reported as such
// even without a session.
func (s *scriptService) Submit(ctx context.Context, session *domain.Session, input domain.ScriptInput) (*domain.Script, error) {
	if err := validation.ValidateScript(input); err != nil {
		s.logger.InfoContext(ctx, "script rejected by validation", "error", err)
		s.metrics.Submission(constants.OutcomeValidationFailed)
		return nil, err
	}

	if !session.Valid(s.now()) {
		var cause error
		if session != nil {
			cause = errors.New("session expired")
		}
		s.logger.WarnContext(ctx, "script submitted without a valid session")
		s.metrics.Submission(constants.OutcomeUnauthorized)
		return nil, domain.WrapUnauthorized(cause)
	}

	normalized := validation.NormalizeScript(input)
	script, err := s.store.InsertScript(ctx, session, normalized)
	if err != nil {
		err = classifyStoreError(err)
		s.logger.ErrorContext(ctx, "failed to store script", "user_id", session.UserID, "error", err)
		s.metrics.Submission(outcomeFor(err))
		return nil, err
	}

	s.logger.InfoContext(ctx, "script stored", "id", script.ID, "user_id", session.UserID)
	s.metrics.Submission(constants.OutcomeSuccess)
	return script, nil
}

// classifyStoreError maps a store failure onto the submission error kinds.
// Provider answers are rejected writes, except those saying the bearer's
// token is no longer accepted.
func classifyStoreError(err error) error {
	if domain.IsUnauthorized(err) || domain.IsPersistenceError(err) || domain.IsTransportError(err) {
		return err
	}

	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) {
		if providerErr.Status == http.StatusUnauthorized || providerErr.Code == codeJWTExpired {
			return domain.WrapUnauthorized(err)
		}
		return domain.WrapPersistence("create script", err)
	}

	return domain.WrapTransport("create script", err)
}

func outcomeFor(err error) string {
	switch {
	case domain.IsUnauthorized(err):
		return constants.OutcomeUnauthorized
	case domain.IsPersistenceError(err):
		return constants.OutcomePersistenceFailed
	default:
		return constants.OutcomeTransportFailed
	}
}
