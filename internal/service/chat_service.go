package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/rand/v2"
	"strings"
	"sync"
	"tani-assist-go/internal/agri"
	"tani-assist-go/internal/config"
	"tani-assist-go/internal/model"
	"tani-assist-go/internal/repository"
	"tani-assist-go/pkg/events"
	"tani-assist-go/pkg/llm"
	"tani-assist-go/pkg/log"
	"tani-assist-go/pkg/storage"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyQuestion = errors.New("pertanyaan tidak boleh kosong")
	ErrUnknownTopic  = errors.New("topik tidak ditemukan")
	ErrInvalidImage  = errors.New("gambar tidak valid")
	// ErrQuotaExceeded 与 repository 层共用同一个哨兵错误。
	ErrQuotaExceeded = repository.ErrQuotaExceeded
)

// DefaultSystemPrompt 在配置未提供 llm.system_prompt 时使用。
const DefaultSystemPrompt = `Kamu adalah Asisten Tani, asisten pertanian yang ramah untuk petani di Indonesia.
Jawab dalam Bahasa Indonesia yang sederhana dan mudah dipahami.
Bantu pertanyaan seputar tanaman, cuaca, pupuk, bibit, hama dan penyakit, serta teknik bercocok tanam.
Berikan langkah-langkah praktis yang bisa langsung diterapkan di lahan.`

// imageOnlyInput 是只上传图片、没有文字时写入日志的用户输入。
const imageOnlyInput = "[gambar]"

// Question 是一次提问的内容。Stream 非空时回答会被分块写入。
type Question struct {
	Text   string
	Image  []byte
	Stream llm.MessageWriter
}

// AssistantService 定义了对话助手的处理函数。每个函数接收当前会话上下文，
// 返回更新后的会话和前端渲染指令，调用方负责通过 Save 持久化。
type AssistantService interface {
	Open(ctx context.Context, user *model.User) (*model.Session, error)
	Submit(ctx context.Context, sess *model.Session, q Question) (*model.Session, model.Render, error)
	QuickTopic(ctx context.Context, sess *model.Session, topicID string) (*model.Session, model.Render, error)
	Reset(ctx context.Context, sess *model.Session) (*model.Session, model.Render, error)
	Save(ctx context.Context, sess *model.Session) error
}

type assistantService struct {
	cfg          config.AssistantConfig
	systemPrompt string
	loc          *time.Location
	llmClient    llm.Client
	sessionRepo  repository.SessionRepository
	usageRepo    repository.UsageRepository
	userRepo     repository.UserRepository
	images       storage.ImageStore
	publisher    events.Publisher
	now          func() time.Time
	rngMu        sync.Mutex
	rng          *rand.Rand
}

// NewAssistantService 创建一个新的 AssistantService 实例。images 与 publisher 可以为 nil。
func NewAssistantService(
	cfg config.AssistantConfig,
	llmCfg config.LLMConfig,
	llmClient llm.Client,
	sessionRepo repository.SessionRepository,
	usageRepo repository.UsageRepository,
	userRepo repository.UserRepository,
	images storage.ImageStore,
	publisher events.Publisher,
) AssistantService {
	prompt := strings.TrimSpace(llmCfg.SystemPrompt)
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	return &assistantService{
		cfg:          cfg,
		systemPrompt: prompt,
		loc:          cfg.Location(),
		llmClient:    llmClient,
		sessionRepo:  sessionRepo,
		usageRepo:    usageRepo,
		userRepo:     userRepo,
		images:       images,
		publisher:    publisher,
		now:          time.Now,
		rng:          rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
}

// dayKey 返回 t 在 loc 时区下的日期（YYYY-MM-DD）。
func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// Open 读取或创建用户的会话，并完成跨日处理：用量清零、清空上一日的对话（每天只发生一次）。
func (s *assistantService) Open(ctx context.Context, user *model.User) (*model.Session, error) {
	sess, err := s.sessionRepo.Get(ctx, user.UserID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		sess = &model.Session{UserID: user.UserID}
	} else if err != nil {
		return nil, err
	}
	if err := s.syncDay(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// syncDay 对齐会话日期并刷新用量。
func (s *assistantService) syncDay(sess *model.Session) error {
	now := s.now()
	today := dayKey(now, s.loc)
	usage, rolledOver, err := s.usageRepo.Rollover(sess.UserID, today)
	if err != nil {
		return err
	}
	if sess.Day != today {
		if sess.Day != "" {
			log.Infof("[AssistantService] 跨日清空会话, userID: %d, %s -> %s", sess.UserID, sess.Day, today)
		}
		sess.Day = today
		sess.Turns = nil
		sess.Draft = ""
		sess.Tip = ""
	}
	if rolledOver {
		log.Infof("[AssistantService] 用量已清零, userID: %d, day: %s", sess.UserID, today)
	}
	if sess.Tip == "" {
		sess.Tip = s.pickTip(now)
	}
	sess.UsageCount = usage.DailyCount
	sess.DailyLimit = s.cfg.DailyLimit
	return nil
}

func (s *assistantService) pickTip(now time.Time) string {
	if s.cfg.TipMode == "random" {
		s.rngMu.Lock()
		defer s.rngMu.Unlock()
		return agri.RandomTip(s.rng)
	}
	return agri.TipFor(now.In(s.loc))
}

func (s *assistantService) turn(role, kind, text string) model.ChatTurn {
	return model.ChatTurn{Role: role, Kind: kind, Text: text, Timestamp: s.now()}
}

// Submit 处理一次提问：相关性过滤 → 配额检查 → 图片校验 → 调用模型 → 原子计数并记录日志。
// 远程调用失败不会作为 error 返回，而是以 error 轮次呈现给用户。
func (s *assistantService) Submit(ctx context.Context, sess *model.Session, q Question) (*model.Session, model.Render, error) {
	next := sess.Clone()
	if err := s.syncDay(next); err != nil {
		return sess, model.Render{}, err
	}

	text := strings.TrimSpace(q.Text)
	hasImage := len(q.Image) > 0
	if text == "" && !hasImage {
		return next, model.Render{Kind: model.RenderInvalid, Message: ErrEmptyQuestion.Error()}, ErrEmptyQuestion
	}
	next.Draft = ""

	// 1. 相关性过滤：离题时只追加提示，不调用模型
	category := agri.CategoryImage
	if text != "" {
		verdict := agri.Classify(text)
		if !verdict.OnTopic {
			log.Infow("[AssistantService] 拒绝离题问题", "userID", next.UserID, "keyword", verdict.Keyword)
			next.Turns = append(next.Turns, s.turn(model.RoleAssistant, model.KindAdvisory, agri.OffTopicMessage))
			return next, model.Render{Kind: model.RenderOffTopic, Message: agri.OffTopicMessage}, nil
		}
		category = verdict.Category
	}

	// 2. 配额检查：达到上限时不调用模型，也不追加轮次
	if next.UsageCount >= next.DailyLimit {
		return next, model.Render{Kind: model.RenderQuota, Message: quotaMessage(next.DailyLimit)}, nil
	}

	userTurn := s.turn(model.RoleUser, "", text)
	userTurn.HasImage = hasImage

	// 3. 图片校验
	var img *llm.Image
	if hasImage {
		var err error
		if img, err = s.decodeImage(q.Image); err != nil {
			return s.failTurn(next, userTurn, err)
		}
	}

	// 4. 调用模型。流式分块先于计数推送，若此后抢配额失败，前端以 quota 渲染为准
	messages := s.buildMessages(next, text, img)
	answer, err := s.ask(ctx, messages, q.Stream)
	if err != nil {
		log.Errorf("[AssistantService] 模型调用失败, userID: %d, error: %v", next.UserID, err)
		return s.failTurn(next, userTurn, err)
	}

	// 5. 成功：保存图片、原子递增计数并写入日志
	now := s.now()
	conv := &model.Conversation{
		ConvID:        uuid.NewString(),
		UserID:        next.UserID,
		Timestamp:     now,
		UserInput:     text,
		AIResponse:    answer,
		TopicCategory: category,
	}
	if conv.UserInput == "" {
		conv.UserInput = imageOnlyInput
	}
	if img != nil {
		conv.ImageKey = s.storeImage(ctx, conv, img)
	}

	usage, err := s.usageRepo.RecordExchange(conv, dayKey(now, s.loc), next.DailyLimit)
	if errors.Is(err, ErrQuotaExceeded) {
		// 并发请求抢先用完了配额，本次回答不计入
		next.UsageCount = next.DailyLimit
		return next, model.Render{Kind: model.RenderQuota, Message: quotaMessage(next.DailyLimit)}, nil
	}
	if err != nil {
		return sess, model.Render{}, err
	}

	next.UsageCount = usage.DailyCount
	next.Turns = append(next.Turns, userTurn, s.turn(model.RoleAssistant, model.KindAnswer, answer))

	s.afterExchange(ctx, conv)
	return next, model.Render{Kind: model.RenderAnswer, Message: answer}, nil
}

// failTurn 追加用户轮次和错误轮次，计数不变。
func (s *assistantService) failTurn(next *model.Session, userTurn model.ChatTurn, err error) (*model.Session, model.Render, error) {
	msg := "Terjadi kesalahan: " + err.Error()
	next.Turns = append(next.Turns, userTurn, s.turn(model.RoleError, model.KindError, msg))
	return next, model.Render{Kind: model.RenderError, Message: msg}, nil
}

func quotaMessage(limit int) string {
	return fmt.Sprintf("Batas harian %d pertanyaan telah tercapai. Silakan coba lagi besok.", limit)
}

// decodeImage 校验图片大小与格式，返回可直接发送给模型的内联图片。
func (s *assistantService) decodeImage(data []byte) (*llm.Image, error) {
	if s.cfg.MaxImageBytes > 0 && int64(len(data)) > s.cfg.MaxImageBytes {
		return nil, fmt.Errorf("%w: ukuran melebihi %d byte", ErrInvalidImage, s.cfg.MaxImageBytes)
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return &llm.Image{Data: data, MIMEType: "image/" + format}, nil
}

// buildMessages 组装发送给模型的上下文：system 提示、已完成的问答对、本次提问。
// 离题提示与错误轮次不会发送给模型。
func (s *assistantService) buildMessages(sess *model.Session, text string, img *llm.Image) []llm.Message {
	msgs := make([]llm.Message, 0, len(sess.Turns)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: s.systemMessage(sess.UserID)})
	for i := 0; i+1 < len(sess.Turns); i++ {
		u, a := sess.Turns[i], sess.Turns[i+1]
		if u.Role != model.RoleUser || a.Role != model.RoleAssistant || a.Kind != model.KindAnswer {
			continue
		}
		content := u.Text
		if content == "" {
			content = imageOnlyInput
		}
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: content},
			llm.Message{Role: llm.RoleAssistant, Content: a.Text},
		)
		i++
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: text, Image: img})
	return msgs
}

// systemMessage 在系统提示后附上农户画像。
func (s *assistantService) systemMessage(userID uint) string {
	if s.userRepo == nil {
		return s.systemPrompt
	}
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		return s.systemPrompt
	}
	var b strings.Builder
	b.WriteString(s.systemPrompt)
	if user.Location != "" || user.FarmingType != "" {
		b.WriteString("\n\nProfil petani:")
		if user.Location != "" {
			b.WriteString("\n- Lokasi: " + user.Location)
		}
		if user.FarmingType != "" {
			b.WriteString("\n- Jenis usaha tani: " + user.FarmingType)
		}
	}
	return b.String()
}

// ask 调用模型。流式模式下通过拦截器同时转发分块并拼接完整答案。
func (s *assistantService) ask(ctx context.Context, messages []llm.Message, stream llm.MessageWriter) (string, error) {
	if stream == nil {
		answer, err := s.llmClient.Chat(ctx, messages, nil)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(answer) == "" {
			return "", errors.New("model mengembalikan jawaban kosong")
		}
		return answer, nil
	}

	answerBuilder := &strings.Builder{}
	interceptor := &captureWriter{next: stream, buf: answerBuilder}
	if err := s.llmClient.StreamChat(ctx, messages, nil, interceptor); err != nil {
		return "", err
	}
	if strings.TrimSpace(answerBuilder.String()) == "" {
		return "", errors.New("model mengembalikan jawaban kosong")
	}
	return answerBuilder.String(), nil
}

// storeImage 上传图片，失败时只记录日志，不影响本次问答。
func (s *assistantService) storeImage(ctx context.Context, conv *model.Conversation, img *llm.Image) string {
	if s.images == nil {
		return ""
	}
	ext := strings.TrimPrefix(img.MIMEType, "image/")
	key := fmt.Sprintf("images/%d/%s.%s", conv.UserID, conv.ConvID, ext)
	if err := s.images.PutImage(ctx, key, img.Data, img.MIMEType); err != nil {
		log.Errorf("[AssistantService] 保存图片失败, convID: %s, error: %v", conv.ConvID, err)
		return ""
	}
	return key
}

// afterExchange 发布事件并更新活跃时间，错误只记录不返回。
func (s *assistantService) afterExchange(ctx context.Context, conv *model.Conversation) {
	if s.publisher != nil {
		event := events.ConversationLogged{
			EventID:       uuid.NewString(),
			ConvID:        conv.ConvID,
			UserID:        conv.UserID,
			Timestamp:     conv.Timestamp,
			UserInput:     conv.UserInput,
			AIResponse:    conv.AIResponse,
			TopicCategory: conv.TopicCategory,
			ImageKey:      conv.ImageKey,
		}
		if err := s.publisher.PublishConversation(ctx, event); err != nil {
			log.Errorf("[AssistantService] 发布对话事件失败, convID: %s, error: %v", conv.ConvID, err)
		}
	}
	if s.userRepo != nil {
		if err := s.userRepo.TouchLastActive(conv.UserID, conv.Timestamp); err != nil {
			log.Warnf("[AssistantService] 更新 last_active 失败, userID: %d, error: %v", conv.UserID, err)
		}
	}
}

// QuickTopic 把预设问题填入输入框，不会发起调用。
func (s *assistantService) QuickTopic(ctx context.Context, sess *model.Session, topicID string) (*model.Session, model.Render, error) {
	topic, ok := agri.QuickTopic(topicID)
	if !ok {
		return sess, model.Render{Kind: model.RenderInvalid, Message: ErrUnknownTopic.Error()}, ErrUnknownTopic
	}
	next := sess.Clone()
	next.Draft = topic.Question
	return next, model.Render{Kind: model.RenderPrefill, Prefill: topic.Question}, nil
}

// Reset 清空当前对话，今日计数保持不变。
func (s *assistantService) Reset(ctx context.Context, sess *model.Session) (*model.Session, model.Render, error) {
	next := sess.Clone()
	next.Turns = nil
	next.Draft = ""
	return next, model.Render{Kind: model.RenderReset}, nil
}

// Save 持久化会话上下文。
func (s *assistantService) Save(ctx context.Context, sess *model.Session) error {
	return s.sessionRepo.Save(ctx, sess)
}

// captureWriter 是对下游 writer 的封装，用于在转发分块的同时捕获完整答案。
type captureWriter struct {
	next llm.MessageWriter
	buf  *strings.Builder
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *captureWriter) WriteMessage(messageType int, data []byte) error {
	w.buf.Write(data)
	return w.next.WriteMessage(messageType, data)
}
