package service

import (
	"context"
	"path/filepath"
	"tani-assist-go/internal/model"
	"tani-assist-go/internal/repository"
	"tani-assist-go/pkg/database"
	"tani-assist-go/pkg/events"
	"tani-assist-go/pkg/llm"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MockLLMClient is a mock type for the llm.Client interface
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Chat(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	args := m.Called(ctx, messages, gen)
	return args.String(0), args.Error(1)
}

// StreamChat writes every string in the first return value as a separate chunk.
func (m *MockLLMClient) StreamChat(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, writer llm.MessageWriter) error {
	args := m.Called(ctx, messages, gen, writer)
	if chunks, ok := args.Get(0).([]string); ok {
		for _, c := range chunks {
			if err := writer.WriteMessage(websocket.TextMessage, []byte(c)); err != nil {
				return err
			}
		}
	}
	return args.Error(1)
}

// MockPublisher is a mock type for the events.Publisher interface
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishConversation(ctx context.Context, event events.ConversationLogged) error {
	return m.Called(ctx, event).Error(0)
}

// MockImageStore is a mock type for the storage.ImageStore interface
type MockImageStore struct {
	mock.Mock
}

func (m *MockImageStore) PutImage(ctx context.Context, objectName string, data []byte, contentType string) error {
	return m.Called(ctx, objectName, data, contentType).Error(0)
}

func (m *MockImageStore) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, objectName, expiry)
	return args.String(0), args.Error(1)
}

// MockConversationSearcher is a mock type for the ConversationSearcher interface
type MockConversationSearcher struct {
	mock.Mock
}

func (m *MockConversationSearcher) SearchConversations(ctx context.Context, userID uint, query string, size int) ([]string, error) {
	args := m.Called(ctx, userID, query, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockConversationRepository is a mock type for the repository.ConversationRepository interface
type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) ListByUser(userID uint, offset, limit int) ([]model.Conversation, int64, error) {
	args := m.Called(userID, offset, limit)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]model.Conversation), args.Get(1).(int64), args.Error(2)
}

func (m *MockConversationRepository) SearchByUser(userID uint, query string, limit int) ([]model.Conversation, error) {
	args := m.Called(userID, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conversation), args.Error(1)
}

func (m *MockConversationRepository) FindByIDs(convIDs []string) ([]model.Conversation, error) {
	args := m.Called(convIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conversation), args.Error(1)
}

// MockPlantDiseaseRepository is a mock type for the repository.PlantDiseaseRepository interface
type MockPlantDiseaseRepository struct {
	mock.Mock
}

func (m *MockPlantDiseaseRepository) FindByPlant(plant string) ([]model.PlantDisease, error) {
	args := m.Called(plant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PlantDisease), args.Error(1)
}

func (m *MockPlantDiseaseRepository) SeedIfEmpty(diseases []model.PlantDisease) (int, error) {
	args := m.Called(diseases)
	return args.Int(0), args.Error(1)
}

// recordingWriter collects streamed chunks.
type recordingWriter struct {
	chunks []string
}

func (w *recordingWriter) WriteMessage(_ int, data []byte) error {
	w.chunks = append(w.chunks, string(data))
	return nil
}

// testStores bundles the real sqlite and redis backed repositories used by service tests.
type testStores struct {
	db       *gorm.DB
	rdb      *redis.Client
	mr       *miniredis.Miniredis
	users    repository.UserRepository
	usage    repository.UsageRepository
	sessions repository.SessionRepository
	convs    repository.ConversationRepository
}

func newTestStores(t *testing.T) *testStores {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "tani.db"))
	require.NoError(t, err)
	db.Logger = logger.Discard
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &testStores{
		db:       db,
		rdb:      rdb,
		mr:       mr,
		users:    repository.NewUserRepository(db),
		usage:    repository.NewUsageRepository(db),
		sessions: repository.NewSessionRepository(rdb, 40),
		convs:    repository.NewConversationRepository(db),
	}
}

func (s *testStores) createUser(t *testing.T, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, Password: "x", Name: "Budi", Location: "Garut", FarmingType: "hortikultura"}
	require.NoError(t, s.users.Create(u))
	return u
}
