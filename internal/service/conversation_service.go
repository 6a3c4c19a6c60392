package service

import (
	"context"
	"strings"
	"tani-assist-go/internal/model"
	"tani-assist-go/internal/repository"
	"tani-assist-go/pkg/log"
	"tani-assist-go/pkg/storage"
	"time"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	searchLimit     = 20
	imageURLExpiry  = time.Hour
)

// ConversationSearcher 是全文检索的读取端，返回按相关度排序的 conv_id。
type ConversationSearcher interface {
	SearchConversations(ctx context.Context, userID uint, query string, size int) ([]string, error)
}

// HistoryEntry 是历史记录中的一条问答，ImageURL 为图片的临时访问链接。
type HistoryEntry struct {
	model.Conversation
	ImageURL string `json:"imageUrl,omitempty"`
}

// HistoryPage 分页结果。
type HistoryPage struct {
	Items []HistoryEntry `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
}

// HistoryService 定义了对话日志的查询操作。
type HistoryService interface {
	List(ctx context.Context, userID uint, page, size int) (*HistoryPage, error)
	Search(ctx context.Context, userID uint, query string) ([]HistoryEntry, error)
}

type historyService struct {
	repo     repository.ConversationRepository
	searcher ConversationSearcher
	images   storage.ImageStore
}

// NewHistoryService 创建一个新的 HistoryService。searcher 为 nil 时使用数据库 LIKE 查询。
func NewHistoryService(repo repository.ConversationRepository, searcher ConversationSearcher, images storage.ImageStore) HistoryService {
	return &historyService{repo: repo, searcher: searcher, images: images}
}

// List 按时间倒序分页返回用户的对话日志。
func (s *historyService) List(ctx context.Context, userID uint, page, size int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	convs, total, err := s.repo.ListByUser(userID, (page-1)*size, size)
	if err != nil {
		return nil, err
	}
	return &HistoryPage{Items: s.entries(ctx, convs), Total: total, Page: page, Size: size}, nil
}

// Search 检索用户的对话日志。Elasticsearch 不可用时回退到数据库查询。
func (s *historyService) Search(ctx context.Context, userID uint, query string) ([]HistoryEntry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []HistoryEntry{}, nil
	}
	if s.searcher != nil {
		convs, err := s.searchIndex(ctx, userID, query)
		if err == nil {
			return s.entries(ctx, convs), nil
		}
		log.Warnf("[HistoryService] Elasticsearch 检索失败，回退到数据库: %v", err)
	}
	convs, err := s.repo.SearchByUser(userID, query, searchLimit)
	if err != nil {
		return nil, err
	}
	return s.entries(ctx, convs), nil
}

// searchIndex 按 Elasticsearch 的相关度顺序返回对话，并过滤掉不属于该用户的记录。
func (s *historyService) searchIndex(ctx context.Context, userID uint, query string) ([]model.Conversation, error) {
	ids, err := s.searcher.SearchConversations(ctx, userID, query, searchLimit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := s.repo.FindByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Conversation, len(found))
	for _, c := range found {
		if c.UserID == userID {
			byID[c.ConvID] = c
		}
	}
	ordered := make([]model.Conversation, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

func (s *historyService) entries(ctx context.Context, convs []model.Conversation) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(convs))
	for _, c := range convs {
		entry := HistoryEntry{Conversation: c}
		if c.ImageKey != "" && s.images != nil {
			if url, err := s.images.PresignedURL(ctx, c.ImageKey, imageURLExpiry); err == nil {
				entry.ImageURL = url
			}
		}
		out = append(out, entry)
	}
	return out
}
