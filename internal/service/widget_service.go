package service

import (
	"math/rand/v2"
	"strings"
	"sync"
	"tani-assist-go/internal/agri"
	"tani-assist-go/internal/config"
	"tani-assist-go/internal/model"
	"tani-assist-go/internal/repository"
	"time"
)

// WidgetService 提供侧边栏上的各类小工具：每日提示、价格、快捷问题、用量与土壤分析。
type WidgetService interface {
	Tip(sess *model.Session) string
	Prices() []model.CommodityPrice
	QuickTopics() []model.QuickTopic
	Usage(userID uint) (*model.UsageView, error)
	AnalyzeSoil(reading model.SoilReading) model.SoilReport
	SampleSoil() model.SoilReport
	Diseases(plant string) ([]model.PlantDisease, error)
}

type widgetService struct {
	cfg         config.AssistantConfig
	loc         *time.Location
	usageRepo   repository.UsageRepository
	diseaseRepo repository.PlantDiseaseRepository
	now         func() time.Time
	mu          sync.Mutex
	rng         *rand.Rand
}

// NewWidgetService 创建一个新的 WidgetService。
func NewWidgetService(cfg config.AssistantConfig, usageRepo repository.UsageRepository, diseaseRepo repository.PlantDiseaseRepository) WidgetService {
	return &widgetService{
		cfg:         cfg,
		loc:         cfg.Location(),
		usageRepo:   usageRepo,
		diseaseRepo: diseaseRepo,
		now:         time.Now,
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 1)),
	}
}

// Tip 返回会话中缓存的提示；会话没有缓存时按配置重新选择。
func (s *widgetService) Tip(sess *model.Session) string {
	if sess != nil && sess.Tip != "" {
		return sess.Tip
	}
	if s.cfg.TipMode == "random" {
		s.mu.Lock()
		defer s.mu.Unlock()
		return agri.RandomTip(s.rng)
	}
	return agri.TipFor(s.now().In(s.loc))
}

func (s *widgetService) Prices() []model.CommodityPrice {
	return agri.Prices()
}

func (s *widgetService) QuickTopics() []model.QuickTopic {
	return agri.QuickTopics()
}

// Usage 返回今日用量，只读不写库：last_reset 早于今天时按 0 计。
func (s *widgetService) Usage(userID uint) (*model.UsageView, error) {
	usage, err := s.usageRepo.Get(userID)
	if err != nil {
		return nil, err
	}
	count := usage.DailyCount
	if usage.LastReset < dayKey(s.now(), s.loc) {
		count = 0
	}
	view := &model.UsageView{
		Count:      count,
		Limit:      s.cfg.DailyLimit,
		TotalUsage: usage.TotalUsage,
	}
	if r := view.Limit - view.Count; r > 0 {
		view.Remaining = r
	}
	if view.Limit > 0 {
		view.Progress = float64(view.Count) / float64(view.Limit)
		if view.Progress > 1 {
			view.Progress = 1
		}
	}
	return view, nil
}

func (s *widgetService) AnalyzeSoil(reading model.SoilReading) model.SoilReport {
	return agri.AnalyzeSoil(reading)
}

// SampleSoil 生成一份模拟传感器读数并给出分析。
func (s *widgetService) SampleSoil() model.SoilReport {
	s.mu.Lock()
	reading := agri.RandomSoilReading(s.rng)
	s.mu.Unlock()
	return agri.AnalyzeSoil(reading)
}

// Diseases 按作物名查询常见病害。
func (s *widgetService) Diseases(plant string) ([]model.PlantDisease, error) {
	plant = strings.TrimSpace(plant)
	if plant == "" {
		return []model.PlantDisease{}, nil
	}
	return s.diseaseRepo.FindByPlant(plant)
}
