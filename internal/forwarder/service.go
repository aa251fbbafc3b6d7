// Package forwarder delivers authenticated wallet code payloads to partner
// stores and keeps a durable dispatch log for every attempt.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"walletbridge/internal/auth"
	"walletbridge/internal/domain"
	"walletbridge/pkg/config"
	"walletbridge/pkg/errors"
	"walletbridge/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const minClientTimeout = 5 * time.Second

// Service signs and POSTs dispatches to configured destinations. Every
// attempt updates the dispatch row; retries are operator-triggered only.
type Service struct {
	repo           Repository
	destinations   []config.Destination
	defaultTimeout time.Duration
	logger         logger.Logger
	now            func() time.Time
}

func NewService(repo Repository, cfg config.ForwardConfig, log logger.Logger) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Service{
		repo:           repo,
		destinations:   cfg.Destinations,
		defaultTimeout: timeout,
		logger:         log,
		now:            time.Now,
	}
}

// ForwardRequest describes one outbound dispatch.
type ForwardRequest struct {
	Destination    string
	PayloadType    domain.PayloadType
	Code           string
	Amount         decimal.Decimal
	Currency       string
	UserRef        string
	Payload        domain.Meta
	IdempotencyKey string
}

// Forward records a pending dispatch, delivers it, and marks the row with the
// outcome. When the idempotency key has been seen before, the stored dispatch
// is returned without a new HTTP call.
func (s *Service) Forward(ctx context.Context, req ForwardRequest) (*domain.Dispatch, error) {
	dest, err := s.destination(req.Destination)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		seen, err := s.repo.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if seen != nil {
			if seen.Status == domain.DispatchStatusSuccess {
				return seen, nil
			}
			return seen, errors.ErrUpstreamUnavailable
		}
	}

	// The caller's payload is merged into a copy; the Meta passes through
	// untouched.
	body := make(domain.Meta, len(req.Payload)+5)
	for k, v := range req.Payload {
		body[k] = v
	}
	body["code"] = req.Code
	body["amount"] = req.Amount.String()
	body["currency"] = req.Currency
	body["payload_type"] = string(req.PayloadType)
	if req.UserRef != "" {
		body["user_ref"] = req.UserRef
	}

	dispatch := &domain.Dispatch{
		UUID:           uuid.New(),
		DestinationURL: dest.URL,
		PayloadType:    req.PayloadType,
		Code:           req.Code,
		Amount:         req.Amount,
		Currency:       req.Currency,
		UserRef:        req.UserRef,
		Payload:        body,
		Status:         domain.DispatchStatusPending,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := s.repo.Create(ctx, dispatch); err != nil {
		return nil, err
	}

	return s.deliver(ctx, dest, dispatch)
}

// Retry re-runs a non-success dispatch from its stored payload.
func (s *Service) Retry(ctx context.Context, dispatchUUID uuid.UUID) (*domain.Dispatch, error) {
	dispatch, err := s.repo.FindByUUID(ctx, dispatchUUID)
	if err != nil {
		return nil, err
	}
	if dispatch.Status == domain.DispatchStatusSuccess {
		return dispatch, nil
	}

	dest := s.destinationByURL(dispatch.DestinationURL)
	if dest == nil {
		return dispatch, errors.ErrInvalidDestination
	}

	return s.deliver(ctx, dest, dispatch)
}

// List returns dispatches filtered by status, newest first.
func (s *Service) List(ctx context.Context, status domain.DispatchStatus, limit, offset int) ([]*domain.Dispatch, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, status, limit, offset)
}

func (s *Service) deliver(ctx context.Context, dest *config.Destination, dispatch *domain.Dispatch) (*domain.Dispatch, error) {
	raw, err := json.Marshal(dispatch.Payload)
	if err != nil {
		return dispatch, errors.Wrap(err, "failed to encode dispatch payload")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.URL, bytes.NewReader(raw))
	if err != nil {
		return dispatch, errors.Wrap(err, "failed to build dispatch request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := s.authorize(httpReq, dest, raw); err != nil {
		return dispatch, err
	}
	if dispatch.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", dispatch.IdempotencyKey)
	}

	client := &http.Client{Timeout: s.clientTimeout(dest)}
	resp, err := client.Do(httpReq)
	if err != nil {
		s.logger.Error("dispatch delivery failed", map[string]interface{}{
			"dispatch_uuid": dispatch.UUID.String(),
			"destination":   dest.Name,
			"error":         err.Error(),
		})
		if markErr := s.repo.MarkFailed(ctx, dispatch.ID, 0, err.Error()); markErr != nil {
			return dispatch, markErr
		}
		dispatch.Status = domain.DispatchStatusFailed
		dispatch.Attempts++
		return dispatch, errors.Wrap(errors.ErrUpstreamUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn("dispatch rejected by destination", map[string]interface{}{
			"dispatch_uuid": dispatch.UUID.String(),
			"destination":   dest.Name,
			"status":        resp.StatusCode,
		})
		detail := "destination responded " + strconv.Itoa(resp.StatusCode)
		if markErr := s.repo.MarkFailed(ctx, dispatch.ID, resp.StatusCode, detail); markErr != nil {
			return dispatch, markErr
		}
		dispatch.Status = domain.DispatchStatusFailed
		dispatch.Attempts++
		code := resp.StatusCode
		dispatch.LastResponseCode = &code
		return dispatch, errors.Wrap(errors.ErrUpstreamUnavailable, detail)
	}

	if err := s.repo.MarkSuccess(ctx, dispatch.ID, resp.StatusCode); err != nil {
		return dispatch, err
	}
	dispatch.Status = domain.DispatchStatusSuccess
	dispatch.Attempts++
	code := resp.StatusCode
	dispatch.LastResponseCode = &code

	s.logger.Info("dispatch delivered", map[string]interface{}{
		"dispatch_uuid": dispatch.UUID.String(),
		"destination":   dest.Name,
		"status":        resp.StatusCode,
		"attempts":      dispatch.Attempts,
	})
	return dispatch, nil
}

// authorize applies the destination's auth mode to the outbound request.
// Unrecognized modes are rejected rather than sent unsigned.
func (s *Service) authorize(req *http.Request, dest *config.Destination, body []byte) error {
	switch dest.AuthMode {
	case config.AuthModeAPIKey:
		req.Header.Set("X-API-Key", dest.Key)
	case config.AuthModeBasic:
		req.SetBasicAuth(dest.Key, dest.Secret)
	case "", config.AuthModeHMAC:
		ts := s.now().Unix()
		req.Header.Set(auth.HeaderKey, dest.Key)
		req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(auth.HeaderSignature, auth.Sign(dest.Key, dest.Secret, req.URL.Path, body, ts))
	default:
		return errors.ErrInvalidDestination
	}
	return nil
}

func (s *Service) destination(name string) (*config.Destination, error) {
	for i := range s.destinations {
		if s.destinations[i].Name == name {
			return &s.destinations[i], nil
		}
	}
	return nil, errors.ErrInvalidDestination
}

func (s *Service) destinationByURL(rawURL string) *config.Destination {
	for i := range s.destinations {
		if s.destinations[i].URL == rawURL {
			return &s.destinations[i]
		}
	}
	return nil
}

func (s *Service) clientTimeout(dest *config.Destination) time.Duration {
	timeout := s.defaultTimeout
	if dest.Timeout > 0 {
		timeout = time.Duration(dest.Timeout * float64(time.Second))
	}
	if timeout < minClientTimeout {
		timeout = minClientTimeout
	}
	return timeout
}

// Repository is the persistence boundary for the dispatch log.
type Repository interface {
	Create(ctx context.Context, d *domain.Dispatch) error
	MarkSuccess(ctx context.Context, id int64, responseCode int) error
	MarkFailed(ctx context.Context, id int64, responseCode int, detail string) error
	FindByUUID(ctx context.Context, id uuid.UUID) (*domain.Dispatch, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Dispatch, error)
	List(ctx context.Context, status domain.DispatchStatus, limit, offset int) ([]*domain.Dispatch, int, error)
}
