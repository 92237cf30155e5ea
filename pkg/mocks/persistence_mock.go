package mocks

import (
	"context"
	"time"

	"github.com/dukex/botrelay/pkg/models"
	"github.com/dukex/botrelay/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockQuestionRepository is a mock implementation of persistence.QuestionRepository interface.
type MockQuestionRepository struct {
	mock.Mock
}

func (m *MockQuestionRepository) Create(ctx context.Context, question *models.Question) error {
	args := m.Called(ctx, question)

	return args.Error(0)
}

func (m *MockQuestionRepository) FindByID(ctx context.Context, id string) (*models.Question, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Question), args.Error(1)
}

func (m *MockQuestionRepository) FindByMsgID(ctx context.Context, msgID string) (*models.Question, error) {
	args := m.Called(ctx, msgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Question), args.Error(1)
}

func (m *MockQuestionRepository) FindEligibleAdvance(ctx context.Context, limit int, now time.Time, window time.Duration) ([]*models.Question, error) {
	args := m.Called(ctx, limit, now, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Question), args.Error(1)
}

func (m *MockQuestionRepository) FindEligibleReconcile(ctx context.Context, limit int) ([]*models.Question, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Question), args.Error(1)
}

func (m *MockQuestionRepository) ConditionalUpdate(ctx context.Context, id string, update models.QuestionUpdate) (bool, error) {
	args := m.Called(ctx, id, update)

	return args.Bool(0), args.Error(1)
}

// MockRunRepository is a mock implementation of persistence.RunRepository interface.
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Create(ctx context.Context, run *models.WorkflowRun) error {
	args := m.Called(ctx, run)

	return args.Error(0)
}

func (m *MockRunRepository) FindActive(ctx context.Context, questionID string) (*models.WorkflowRun, error) {
	args := m.Called(ctx, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowRun), args.Error(1)
}

func (m *MockRunRepository) FillIdentifiers(ctx context.Context, runID string, ids models.RunIdentifiers) error {
	args := m.Called(ctx, runID, ids)

	return args.Error(0)
}

func (m *MockRunRepository) UpdateLatestAnswer(ctx context.Context, runID string, answer string) error {
	args := m.Called(ctx, runID, answer)

	return args.Error(0)
}

// MockEventRepository is a mock implementation of persistence.EventRepository interface.
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Append(ctx context.Context, event *models.WorkflowEvent) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

func (m *MockEventRepository) LatestByRunAndKind(ctx context.Context, runID string, kind models.EventKind) (*models.WorkflowEvent, error) {
	args := m.Called(ctx, runID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowEvent), args.Error(1)
}

func (m *MockEventRepository) LatestByRecordAndKind(ctx context.Context, questionID string, kind models.EventKind) (*models.WorkflowEvent, error) {
	args := m.Called(ctx, questionID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowEvent), args.Error(1)
}

func (m *MockEventRepository) ExistsByRunAndStatus(ctx context.Context, runID string, status models.EventStatus) (bool, error) {
	args := m.Called(ctx, runID, status)

	return args.Bool(0), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	QuestionRepo *MockQuestionRepository
	RunRepo      *MockRunRepository
	EventRepo    *MockEventRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		QuestionRepo: &MockQuestionRepository{},
		RunRepo:      &MockRunRepository{},
		EventRepo:    &MockEventRepository{},
	}
}

func (m *MockPersistence) Questions() persistence.QuestionRepository {
	return m.QuestionRepo
}

func (m *MockPersistence) Runs() persistence.RunRepository {
	return m.RunRepo
}

func (m *MockPersistence) Events() persistence.EventRepository {
	return m.EventRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
