package forwarder

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"walletbridge/internal/auth"
	"walletbridge/internal/domain"
	"walletbridge/pkg/config"
	"walletbridge/pkg/errors"
	"walletbridge/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, d *domain.Dispatch) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockRepository) MarkSuccess(ctx context.Context, id int64, responseCode int) error {
	args := m.Called(ctx, id, responseCode)
	return args.Error(0)
}

func (m *MockRepository) MarkFailed(ctx context.Context, id int64, responseCode int, detail string) error {
	args := m.Called(ctx, id, responseCode, detail)
	return args.Error(0)
}

func (m *MockRepository) FindByUUID(ctx context.Context, id uuid.UUID) (*domain.Dispatch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Dispatch), args.Error(1)
}

func (m *MockRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Dispatch, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Dispatch), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, status domain.DispatchStatus, limit, offset int) ([]*domain.Dispatch, int, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.Dispatch), args.Int(1), args.Error(2)
}

func newTestService(repo Repository, destinations []config.Destination) *Service {
	svc := NewService(repo, config.ForwardConfig{
		Destinations: destinations,
		Timeout:      5 * time.Second,
	}, logger.NewNop())
	svc.now = func() time.Time { return time.Unix(1748779200, 0) }
	return svc
}

func walletRequest() ForwardRequest {
	return ForwardRequest{
		Destination:    "partner",
		PayloadType:    domain.PayloadTypeWallet,
		Code:           "GIFT-500",
		Amount:         decimal.NewFromInt(500000),
		Currency:       "IRR",
		UserRef:        "customer@example.com",
		IdempotencyKey: "fwd-001",
	}
}

func TestForward_DeliversSignedPayload(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := new(MockRepository)
	repo.On("FindByIdempotencyKey", mock.Anything, "fwd-001").Return(nil, nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(d *domain.Dispatch) bool {
		d.ID = 7
		return d.Status == domain.DispatchStatusPending && d.DestinationURL == server.URL+"/bridge/v1/wallet-codes"
	})).Return(nil)
	repo.On("MarkSuccess", mock.Anything, int64(7), http.StatusOK).Return(nil)

	svc := newTestService(repo, []config.Destination{{
		Name:   "partner",
		URL:    server.URL + "/bridge/v1/wallet-codes",
		Key:    "store-a",
		Secret: "s3cret",
	}})

	dispatch, err := svc.Forward(context.Background(), walletRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.DispatchStatusSuccess, dispatch.Status)
	assert.Equal(t, 1, dispatch.Attempts)
	require.NotNil(t, dispatch.LastResponseCode)
	assert.Equal(t, http.StatusOK, *dispatch.LastResponseCode)

	assert.Equal(t, "store-a", gotHeaders.Get(auth.HeaderKey))
	assert.Equal(t, "fwd-001", gotHeaders.Get("Idempotency-Key"))

	ts, err := strconv.ParseInt(gotHeaders.Get(auth.HeaderTimestamp), 10, 64)
	require.NoError(t, err)
	target, _ := url.Parse(server.URL + "/bridge/v1/wallet-codes")
	expected := auth.Sign("store-a", "s3cret", target.Path, gotBody, ts)
	assert.Equal(t, expected, gotHeaders.Get(auth.HeaderSignature))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "GIFT-500", payload["code"])
	assert.Equal(t, "500000", payload["amount"])
	assert.Equal(t, "wallet", payload["payload_type"])
	repo.AssertExpectations(t)
}

func TestForward_APIKeyAuthMode(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := new(MockRepository)
	repo.On("FindByIdempotencyKey", mock.Anything, "fwd-001").Return(nil, nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(d *domain.Dispatch) bool {
		d.ID = 21
		return true
	})).Return(nil)
	repo.On("MarkSuccess", mock.Anything, int64(21), http.StatusOK).Return(nil)

	svc := newTestService(repo, []config.Destination{{
		Name: "partner", URL: server.URL + "/hook", Key: "token-123", Secret: "s",
		AuthMode: config.AuthModeAPIKey,
	}})

	_, err := svc.Forward(context.Background(), walletRequest())
	require.NoError(t, err)
	assert.Equal(t, "token-123", gotHeaders.Get("X-API-Key"))
	assert.Empty(t, gotHeaders.Get(auth.HeaderSignature))
	assert.Empty(t, gotHeaders.Get("Authorization"))
}

func TestForward_BasicAuthMode(t *testing.T) {
	var gotUser, gotPass string
	var gotOK bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotOK = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := new(MockRepository)
	repo.On("FindByIdempotencyKey", mock.Anything, "fwd-001").Return(nil, nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(d *domain.Dispatch) bool {
		d.ID = 22
		return true
	})).Return(nil)
	repo.On("MarkSuccess", mock.Anything, int64(22), http.StatusOK).Return(nil)

	svc := newTestService(repo, []config.Destination{{
		Name: "partner", URL: server.URL + "/hook", Key: "store-a", Secret: "s3cret",
		AuthMode: config.AuthModeBasic,
	}})

	_, err := svc.Forward(context.Background(), walletRequest())
	require.NoError(t, err)
	require.True(t, gotOK)
	assert.Equal(t, "store-a", gotUser)
	assert.Equal(t, "s3cret", gotPass)
}

func TestForward_DoesNotMutateCallerPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := new(MockRepository)
	repo.On("FindByIdempotencyKey", mock.Anything, "fwd-001").Return(nil, nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(d *domain.Dispatch) bool {
		d.ID = 23
		return true
	})).Return(nil)
	repo.On("MarkSuccess", mock.Anything, int64(23), http.StatusOK).Return(nil)

	svc := newTestService(repo, []config.Destination{{
		Name: "partner", URL: server.URL + "/hook", Key: "k", Secret: "s",
	}})

	req := walletRequest()
	req.Payload = domain.Meta{"order_id": "A-9"}

	_, err := svc.Forward(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.Meta{"order_id": "A-9"}, req.Payload)
}

func TestForward_Non2xxMarksFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	repo := new(MockRepository)
	repo.On("FindByIdempotencyKey", mock.Anything, "fwd-001").Return(nil, nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(d *domain.Dispatch) bool {
		d.ID = 8
		return true
	})).Return(nil)
	repo.On("MarkFailed", mock.Anything, int64(8), http.StatusBadGateway, mock.Anything).Return(nil)

	svc := newTestService(repo, []config.Destination{{
		Name: "partner", URL: server.URL + "/hook", Key: "k", Secret: "s",
	}})

	dispatch, err := svc.Forward(context.Background(), walletRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUpstreamUnavailable)
	assert.Equal(t, domain.DispatchStatusFailed, dispatch.Status)
	repo.AssertExpectations(t)
}

func TestForward_NetworkErrorMarksFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	repo := new(MockRepository)
	repo.On("FindByIdempotencyKey", mock.Anything, "fwd-001").Return(nil, nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(d *domain.Dispatch) bool {
		d.ID = 9
		return true
	})).Return(nil)
	repo.On("MarkFailed", mock.Anything, int64(9), 0, mock.Anything).Return(nil)

	svc := newTestService(repo, []config.Destination{{
		Name: "partner", URL: server.URL + "/hook", Key: "k", Secret: "s",
	}})

	dispatch, err := svc.Forward(context.Background(), walletRequest())
	assert.ErrorIs(t, err, errors.ErrUpstreamUnavailable)
	assert.Equal(t, domain.DispatchStatusFailed, dispatch.Status)
	repo.AssertExpectations(t)
}

func TestForward_UnknownDestination(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, nil)

	_, err := svc.Forward(context.Background(), walletRequest())
	assert.ErrorIs(t, err, errors.ErrInvalidDestination)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestForward_IdempotencyKeyReplaysStoredOutcome(t *testing.T) {
	stored := &domain.Dispatch{
		ID:     3,
		UUID:   uuid.New(),
		Status: domain.DispatchStatusSuccess,
	}

	repo := new(MockRepository)
	repo.On("FindByIdempotencyKey", mock.Anything, "fwd-001").Return(stored, nil)

	svc := newTestService(repo, []config.Destination{{
		Name: "partner", URL: "https://partner.example/hook", Key: "k", Secret: "s",
	}})

	dispatch, err := svc.Forward(context.Background(), walletRequest())
	require.NoError(t, err)
	assert.Equal(t, stored.UUID, dispatch.UUID)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestForward_IdempotencyKeyFailedOutcome(t *testing.T) {
	stored := &domain.Dispatch{ID: 4, UUID: uuid.New(), Status: domain.DispatchStatusFailed}

	repo := new(MockRepository)
	repo.On("FindByIdempotencyKey", mock.Anything, "fwd-001").Return(stored, nil)

	svc := newTestService(repo, []config.Destination{{
		Name: "partner", URL: "https://partner.example/hook", Key: "k", Secret: "s",
	}})

	dispatch, err := svc.Forward(context.Background(), walletRequest())
	assert.ErrorIs(t, err, errors.ErrUpstreamUnavailable)
	assert.Equal(t, stored.UUID, dispatch.UUID)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRetry_RedeliversFailedDispatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	id := uuid.New()
	stored := &domain.Dispatch{
		ID:             11,
		UUID:           id,
		DestinationURL: server.URL + "/hook",
		PayloadType:    domain.PayloadTypeWallet,
		Code:           "GIFT-500",
		Amount:         decimal.NewFromInt(500000),
		Currency:       "IRR",
		Payload:        domain.Meta{"code": "GIFT-500"},
		Status:         domain.DispatchStatusFailed,
		Attempts:       1,
	}

	repo := new(MockRepository)
	repo.On("FindByUUID", mock.Anything, id).Return(stored, nil)
	repo.On("MarkSuccess", mock.Anything, int64(11), http.StatusCreated).Return(nil)

	svc := newTestService(repo, []config.Destination{{
		Name: "partner", URL: server.URL + "/hook", Key: "k", Secret: "s",
	}})

	dispatch, err := svc.Retry(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.DispatchStatusSuccess, dispatch.Status)
	assert.Equal(t, 2, dispatch.Attempts)
	repo.AssertExpectations(t)
}

func TestRetry_SuccessIsNoop(t *testing.T) {
	id := uuid.New()
	stored := &domain.Dispatch{ID: 12, UUID: id, Status: domain.DispatchStatusSuccess}

	repo := new(MockRepository)
	repo.On("FindByUUID", mock.Anything, id).Return(stored, nil)

	svc := newTestService(repo, nil)
	dispatch, err := svc.Retry(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.DispatchStatusSuccess, dispatch.Status)
	repo.AssertNotCalled(t, "MarkSuccess", mock.Anything, mock.Anything, mock.Anything)
}
