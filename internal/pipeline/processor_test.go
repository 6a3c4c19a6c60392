package pipeline

import (
	"context"
	"errors"
	"tani-assist-go/internal/model"
	"tani-assist-go/pkg/events"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockIndex struct {
	mock.Mock
}

func (m *mockIndex) IndexConversation(ctx context.Context, doc model.ConversationDocument) error {
	return m.Called(ctx, doc).Error(0)
}

func TestIndexerProcess(t *testing.T) {
	ts := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	idx := new(mockIndex)
	idx.On("IndexConversation", mock.Anything, model.ConversationDocument{
		ConvID: "c1", UserID: 3, Timestamp: ts, UserInput: "pupuk?", AIResponse: "urea", TopicCategory: "pupuk_tanah",
	}).Return(nil)

	err := NewIndexer(idx).Process(context.Background(), events.ConversationLogged{
		EventID: "e1", ConvID: "c1", UserID: 3, Timestamp: ts, UserInput: "pupuk?", AIResponse: "urea", TopicCategory: "pupuk_tanah",
	})
	require.NoError(t, err)
	idx.AssertExpectations(t)
}

func TestIndexerPropagatesError(t *testing.T) {
	idx := new(mockIndex)
	idx.On("IndexConversation", mock.Anything, mock.Anything).Return(errors.New("es down"))

	err := NewIndexer(idx).Process(context.Background(), events.ConversationLogged{ConvID: "c1"})
	assert.ErrorContains(t, err, "es down")
}

func TestIndexerWithoutIndex(t *testing.T) {
	assert.NoError(t, NewIndexer(nil).Process(context.Background(), events.ConversationLogged{ConvID: "c1"}))
	assert.Error(t, NewIndexer(nil).Process(context.Background(), events.ConversationLogged{}))
}
