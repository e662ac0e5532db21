package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/smskit/dispatch/internal/dispatch_service/adapters/transport"
	"github.com/smskit/dispatch/internal/dispatch_service/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Create(ctx context.Context, rec *domain.DeliveryRecord) (*domain.DeliveryRecord, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DeliveryRecord), args.Error(1)
}

func (m *MockMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DeliveryRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DeliveryRecord), args.Error(1)
}

func (m *MockMessageRepository) GetByThread(ctx context.Context, threadID uuid.UUID) ([]*domain.DeliveryRecord, error) {
	args := m.Called(ctx, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DeliveryRecord), args.Error(1)
}

func (m *MockMessageRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.MessageStatus, errorCode *int32, sentAt *time.Time) error {
	args := m.Called(ctx, id, status, errorCode, sentAt)
	return args.Error(0)
}

func (m *MockMessageRepository) UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status domain.DeliveryStatus, deliveredAt time.Time, errorCode *int32) error {
	args := m.Called(ctx, id, status, deliveredAt, errorCode)
	return args.Error(0)
}

func (m *MockMessageRepository) ListOrdered(ctx context.Context) ([]*domain.DeliveryRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DeliveryRecord), args.Error(1)
}

func (m *MockMessageRepository) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

type MockSendTransport struct {
	mock.Mock
}

func (m *MockSendTransport) Name() string { return "mock" }

func (m *MockSendTransport) Capabilities(ctx context.Context) (transport.Capabilities, error) {
	args := m.Called(ctx)
	return args.Get(0).(transport.Capabilities), args.Error(1)
}

func (m *MockSendTransport) Send(ctx context.Context, txn *domain.Transaction) (*transport.SendResult, error) {
	args := m.Called(ctx, txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transport.SendResult), args.Error(1)
}

func (m *MockSendTransport) CancelScheduled(ctx context.Context, recordID uuid.UUID) error {
	args := m.Called(ctx, recordID)
	return args.Error(0)
}

// fakeScheduler captures scheduled triggers so tests can fire or cancel them
// deterministically.
type fakeScheduler struct {
	mu    sync.Mutex
	fires map[uuid.UUID]func()
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{fires: make(map[uuid.UUID]func())}
}

func (s *fakeScheduler) Schedule(id uuid.UUID, at time.Time, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fires[id] = fire
}

func (s *fakeScheduler) Cancel(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fires[id]; !ok {
		return false
	}
	delete(s.fires, id)
	return true
}

func (s *fakeScheduler) Stop() {}

func (s *fakeScheduler) fire(id uuid.UUID) bool {
	s.mu.Lock()
	fn, ok := s.fires[id]
	delete(s.fires, id)
	s.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

func (s *fakeScheduler) pending(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fires[id]
	return ok
}
