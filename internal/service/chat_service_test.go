package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"tani-assist-go/internal/config"
	"tani-assist-go/internal/model"
	"tani-assist-go/pkg/events"
	"tani-assist-go/pkg/llm"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const chiliQuestion = "Bagaimana cara merawat cabai saat musim hujan?"

type assistantFixture struct {
	stores *testStores
	llm    *MockLLMClient
	pub    *MockPublisher
	images *MockImageStore
	svc    *assistantService
	clock  time.Time
	user   *model.User
}

func newAssistantFixture(t *testing.T) *assistantFixture {
	t.Helper()
	f := &assistantFixture{
		stores: newTestStores(t),
		llm:    new(MockLLMClient),
		pub:    new(MockPublisher),
		images: new(MockImageStore),
	}
	cfg := config.AssistantConfig{DailyLimit: 10, Timezone: "Asia/Jakarta", TipMode: "daily", MaxImageBytes: 1 << 20}
	svc := NewAssistantService(cfg, config.LLMConfig{}, f.llm, f.stores.sessions, f.stores.usage, f.stores.users, f.images, f.pub)
	f.svc = svc.(*assistantService)
	f.clock = time.Date(2026, 3, 10, 9, 0, 0, 0, f.svc.loc)
	f.svc.now = func() time.Time { return f.clock }
	f.user = f.stores.createUser(t, "budi")
	f.pub.On("PublishConversation", mock.Anything, mock.Anything).Return(nil)
	return f
}

func (f *assistantFixture) open(t *testing.T) *model.Session {
	t.Helper()
	sess, err := f.svc.Open(context.Background(), f.user)
	require.NoError(t, err)
	return sess
}

func (f *assistantFixture) submit(t *testing.T, sess *model.Session, q Question) (*model.Session, model.Render) {
	t.Helper()
	next, render, err := f.svc.Submit(context.Background(), sess, q)
	require.NoError(t, err)
	require.NoError(t, f.svc.Save(context.Background(), next))
	return next, render
}

func (f *assistantFixture) dailyCount(t *testing.T) int {
	t.Helper()
	usage, err := f.stores.usage.Get(f.user.UserID)
	require.NoError(t, err)
	return usage.DailyCount
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSubmitOnTopicQuestion(t *testing.T) {
	f := newAssistantFixture(t)
	var sent []llm.Message
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]llm.Message) }).
		Return("Buat bedengan tinggi dan perbaiki drainase.", nil).Once()

	sess := f.open(t)
	assert.Equal(t, 0, sess.UsageCount)

	next, render := f.submit(t, sess, Question{Text: chiliQuestion})

	assert.Equal(t, model.RenderAnswer, render.Kind)
	assert.Equal(t, 1, next.UsageCount)
	require.Len(t, next.Turns, 2)
	assert.Equal(t, model.RoleUser, next.Turns[0].Role)
	assert.Equal(t, chiliQuestion, next.Turns[0].Text)
	assert.Equal(t, model.RoleAssistant, next.Turns[1].Role)
	assert.Equal(t, model.KindAnswer, next.Turns[1].Kind)
	f.llm.AssertNumberOfCalls(t, "Chat", 1)

	// 上下文：system 提示（含农户画像）+ 本次提问
	require.Len(t, sent, 2)
	assert.Equal(t, llm.RoleSystem, sent[0].Role)
	assert.Contains(t, sent[0].Content, "Garut")
	assert.Equal(t, chiliQuestion, sent[1].Content)

	// 原会话不被修改
	assert.Empty(t, sess.Turns)

	assert.Equal(t, 1, f.dailyCount(t))
	convs, total, err := f.stores.convs.ListByUser(f.user.UserID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, chiliQuestion, convs[0].UserInput)
	assert.NotEmpty(t, convs[0].TopicCategory)

	f.pub.AssertCalled(t, "PublishConversation", mock.Anything, mock.MatchedBy(func(e events.ConversationLogged) bool {
		return e.ConvID == convs[0].ConvID && e.UserID == f.user.UserID
	}))
}

func TestSubmitOffTopicSkipsModel(t *testing.T) {
	f := newAssistantFixture(t)
	sess := f.open(t)

	next, render := f.submit(t, sess, Question{Text: "Apa film terbaru?"})

	assert.Equal(t, model.RenderOffTopic, render.Kind)
	require.Len(t, next.Turns, 1)
	assert.Equal(t, model.RoleAssistant, next.Turns[0].Role)
	assert.Equal(t, model.KindAdvisory, next.Turns[0].Kind)
	assert.Equal(t, 0, next.UsageCount)
	f.llm.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, f.dailyCount(t))
}

func TestSubmitEleventhQuestionBlocked(t *testing.T) {
	f := newAssistantFixture(t)
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything).Return("Jawaban.", nil)

	sess := f.open(t)
	for i := 0; i < 10; i++ {
		var render model.Render
		sess, render = f.submit(t, sess, Question{Text: chiliQuestion})
		require.Equal(t, model.RenderAnswer, render.Kind, "question %d", i+1)
	}
	assert.Equal(t, 10, sess.UsageCount)
	assert.Len(t, sess.Turns, 20)

	next, render := f.submit(t, sess, Question{Text: chiliQuestion})
	assert.Equal(t, model.RenderQuota, render.Kind)
	assert.Len(t, next.Turns, 20)
	f.llm.AssertNumberOfCalls(t, "Chat", 10)
	assert.Equal(t, 10, f.dailyCount(t))
}

func TestSubmitModelFailureAppendsErrorTurn(t *testing.T) {
	f := newAssistantFixture(t)
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("503 unavailable"))

	next, render := f.submit(t, f.open(t), Question{Text: chiliQuestion})

	assert.Equal(t, model.RenderError, render.Kind)
	assert.True(t, strings.HasPrefix(render.Message, "Terjadi kesalahan: "))
	require.Len(t, next.Turns, 2)
	assert.Equal(t, model.RoleUser, next.Turns[0].Role)
	assert.Equal(t, model.RoleError, next.Turns[1].Role)
	assert.Equal(t, 0, next.UsageCount)
	assert.Equal(t, 0, f.dailyCount(t))
	f.pub.AssertNotCalled(t, "PublishConversation", mock.Anything, mock.Anything)
}

func TestSubmitEmptyQuestion(t *testing.T) {
	f := newAssistantFixture(t)
	_, render, err := f.svc.Submit(context.Background(), f.open(t), Question{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Equal(t, model.RenderInvalid, render.Kind)
}

func TestDayRolloverClearsTurnsOnce(t *testing.T) {
	f := newAssistantFixture(t)
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything).Return("Jawaban.", nil)

	sess, _ := f.submit(t, f.open(t), Question{Text: chiliQuestion})
	require.Len(t, sess.Turns, 2)

	f.clock = f.clock.Add(24 * time.Hour)
	sess = f.open(t)
	assert.Empty(t, sess.Turns)
	assert.Equal(t, 0, sess.UsageCount)
	assert.Equal(t, "2026-03-11", sess.Day)

	sess, _ = f.submit(t, sess, Question{Text: chiliQuestion})
	require.Len(t, sess.Turns, 2)

	// 同一天再次打开不会再清空
	f.clock = f.clock.Add(2 * time.Hour)
	sess = f.open(t)
	assert.Len(t, sess.Turns, 2)
	assert.Equal(t, 1, sess.UsageCount)

	usage, err := f.stores.usage.Get(f.user.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.TotalUsage)
}

func TestContextIncludesOnlyAnsweredPairs(t *testing.T) {
	f := newAssistantFixture(t)
	var sent []llm.Message
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]llm.Message) }).
		Return("Jawaban.", nil)

	sess := f.open(t)
	sess, _ = f.submit(t, sess, Question{Text: "Apa film terbaru?"})
	sess, _ = f.submit(t, sess, Question{Text: "pupuk apa untuk padi?"})
	require.Len(t, sent, 2)

	_, _ = f.submit(t, sess, Question{Text: chiliQuestion})
	require.Len(t, sent, 4)
	assert.Equal(t, llm.RoleUser, sent[1].Role)
	assert.Equal(t, "pupuk apa untuk padi?", sent[1].Content)
	assert.Equal(t, llm.RoleAssistant, sent[2].Role)
}

func TestSubmitImageOnly(t *testing.T) {
	f := newAssistantFixture(t)
	var sent []llm.Message
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]llm.Message) }).
		Return("Daun terkena bercak.", nil)
	f.images.On("PutImage", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "images/") && strings.HasSuffix(key, ".png")
	}), mock.Anything, "image/png").Return(nil)

	next, render := f.submit(t, f.open(t), Question{Image: pngBytes(t)})

	assert.Equal(t, model.RenderAnswer, render.Kind)
	require.Len(t, next.Turns, 2)
	assert.True(t, next.Turns[0].HasImage)
	require.NotNil(t, sent[len(sent)-1].Image)
	assert.Equal(t, "image/png", sent[len(sent)-1].Image.MIMEType)
	f.images.AssertExpectations(t)

	convs, _, err := f.stores.convs.ListByUser(f.user.UserID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, imageOnlyInput, convs[0].UserInput)
	assert.NotEmpty(t, convs[0].ImageKey)
}

func TestSubmitInvalidImage(t *testing.T) {
	f := newAssistantFixture(t)
	next, render := f.submit(t, f.open(t), Question{Text: "daun cabai saya kenapa?", Image: []byte("bukan gambar")})

	assert.Equal(t, model.RenderError, render.Kind)
	assert.Contains(t, render.Message, ErrInvalidImage.Error())
	require.Len(t, next.Turns, 2)
	assert.Equal(t, model.RoleError, next.Turns[1].Role)
	f.llm.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitOversizedImageAppendsErrorTurn(t *testing.T) {
	f := newAssistantFixture(t)
	big := append(pngBytes(t), make([]byte, 1<<20)...)

	next, render := f.submit(t, f.open(t), Question{Text: "daun cabai bercak", Image: big})

	assert.Equal(t, model.RenderError, render.Kind)
	assert.True(t, strings.HasPrefix(render.Message, "Terjadi kesalahan: "+ErrInvalidImage.Error()))
	require.Len(t, next.Turns, 2)
	assert.True(t, next.Turns[0].HasImage)
	assert.Equal(t, model.RoleError, next.Turns[1].Role)
	assert.Equal(t, 0, f.dailyCount(t))
	f.llm.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitStreamLosingQuotaRace(t *testing.T) {
	f := newAssistantFixture(t)
	sess := f.open(t)

	// 模型作答期间，其他请求用完了当日配额
	f.llm.On("StreamChat", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			for i := 0; i < 10; i++ {
				_, err := f.stores.usage.RecordExchange(&model.Conversation{
					ConvID:     fmt.Sprintf("other-%d", i),
					UserID:     f.user.UserID,
					Timestamp:  f.clock,
					UserInput:  "q",
					AIResponse: "a",
				}, "2026-03-10", 10)
				require.NoError(t, err)
			}
		}).
		Return([]string{"Siram ", "pagi hari."}, nil)

	rec := &recordingWriter{}
	next, render := f.submit(t, sess, Question{Text: chiliQuestion, Stream: rec})

	assert.Equal(t, model.RenderQuota, render.Kind)
	assert.Equal(t, []string{"Siram ", "pagi hari."}, rec.chunks, "chunks already went out before the count")
	assert.Empty(t, next.Turns)
	assert.Equal(t, 10, next.UsageCount)
	assert.Equal(t, 10, f.dailyCount(t))

	_, total, err := f.stores.convs.ListByUser(f.user.UserID, 0, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
	f.pub.AssertNotCalled(t, "PublishConversation", mock.Anything, mock.Anything)
}

func TestSubmitStreamsChunks(t *testing.T) {
	f := newAssistantFixture(t)
	f.llm.On("StreamChat", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]string{"Siram ", "pagi hari."}, nil)

	rec := &recordingWriter{}
	next, render := f.submit(t, f.open(t), Question{Text: chiliQuestion, Stream: rec})

	assert.Equal(t, model.RenderAnswer, render.Kind)
	assert.Equal(t, "Siram pagi hari.", render.Message)
	assert.Equal(t, []string{"Siram ", "pagi hari."}, rec.chunks)
	assert.Equal(t, 1, next.UsageCount)
}

func TestQuickTopicPrefillsDraft(t *testing.T) {
	f := newAssistantFixture(t)
	sess := f.open(t)

	next, render, err := f.svc.QuickTopic(context.Background(), sess, "cuaca")
	require.NoError(t, err)
	assert.Equal(t, model.RenderPrefill, render.Kind)
	assert.Equal(t, chiliQuestion, render.Prefill)
	assert.Equal(t, chiliQuestion, next.Draft)
	f.llm.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)

	_, _, err = f.svc.QuickTopic(context.Background(), sess, "tidak-ada")
	assert.ErrorIs(t, err, ErrUnknownTopic)
}

func TestResetKeepsUsage(t *testing.T) {
	f := newAssistantFixture(t)
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything).Return("Jawaban.", nil)
	sess, _ := f.submit(t, f.open(t), Question{Text: chiliQuestion})

	next, render, err := f.svc.Reset(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, model.RenderReset, render.Kind)
	assert.Empty(t, next.Turns)
	assert.Equal(t, 1, next.UsageCount)
	assert.Equal(t, 1, f.dailyCount(t))
}

func TestOpenPersistsAcrossSave(t *testing.T) {
	f := newAssistantFixture(t)
	sess := f.open(t)
	assert.NotEmpty(t, sess.Tip)
	assert.Equal(t, 10, sess.DailyLimit)

	sess.Draft = "draf"
	require.NoError(t, f.svc.Save(context.Background(), sess))
	again := f.open(t)
	assert.Equal(t, "draf", again.Draft)
	assert.Equal(t, sess.Tip, again.Tip)
}
