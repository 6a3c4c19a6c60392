package repository

import (
	"strings"
	"tani-assist-go/internal/model"

	"gorm.io/gorm"
)

// PlantDiseaseRepository 提供 plant_diseases 参考表的只读查询。
type PlantDiseaseRepository interface {
	FindByPlant(plant string) ([]model.PlantDisease, error)
	// SeedIfEmpty 仅在表为空时写入初始数据。
	SeedIfEmpty(diseases []model.PlantDisease) (int, error)
}

type plantDiseaseRepository struct {
	db *gorm.DB
}

// NewPlantDiseaseRepository 创建一个新的 PlantDiseaseRepository 实例。
func NewPlantDiseaseRepository(db *gorm.DB) PlantDiseaseRepository {
	return &plantDiseaseRepository{db: db}
}

// FindByPlant 返回 affected_plants 中包含指定作物的病害；plant 为空时返回全部。
func (r *plantDiseaseRepository) FindByPlant(plant string) ([]model.PlantDisease, error) {
	var diseases []model.PlantDisease
	q := r.db.Order("name")
	if plant != "" {
		q = q.Where("LOWER(affected_plants) LIKE ? ESCAPE '!'", "%"+escapeLike(strings.ToLower(plant))+"%")
	}
	err := q.Find(&diseases).Error
	return diseases, err
}

func (r *plantDiseaseRepository) SeedIfEmpty(diseases []model.PlantDisease) (int, error) {
	var count int64
	if err := r.db.Model(&model.PlantDisease{}).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 || len(diseases) == 0 {
		return 0, nil
	}
	if err := r.db.Create(&diseases).Error; err != nil {
		return 0, err
	}
	return len(diseases), nil
}
