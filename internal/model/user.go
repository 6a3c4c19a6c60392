// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// User 对应 users 表，保存农户的基本资料。
// Username/Password 用于登录，其余字段是助手回答时参考的画像信息。
type User struct {
	UserID       uint      `gorm:"primaryKey;autoIncrement;column:user_id" json:"userId"`
	Username     string    `gorm:"type:varchar(64);uniqueIndex;not null;column:username" json:"username"`
	Password     string    `gorm:"type:varchar(255);not null;column:password" json:"-"`
	Name         string    `gorm:"type:varchar(100);column:name" json:"name"`
	Location     string    `gorm:"type:varchar(100);column:location" json:"location"`
	FarmingType  string    `gorm:"type:varchar(50);column:farming_type" json:"farmingType"`
	RegisterDate time.Time `gorm:"autoCreateTime;column:register_date" json:"registerDate"`
	LastActive   time.Time `gorm:"column:last_active" json:"lastActive"`

	UsageLimit    *UsageLimit    `gorm:"foreignKey:UserID;references:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Conversations []Conversation `gorm:"foreignKey:UserID;references:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}

// UsageLimit 对应 usage_limits 表，记录每日调用次数。
// LastReset 使用 YYYY-MM-DD 格式，按配置时区计算。
type UsageLimit struct {
	UserID     uint   `gorm:"primaryKey;autoIncrement:false;column:user_id" json:"userId"`
	DailyCount int    `gorm:"not null;default:0;column:daily_count" json:"dailyCount"`
	LastReset  string `gorm:"type:varchar(10);not null;column:last_reset" json:"lastReset"`
	TotalUsage int    `gorm:"not null;default:0;column:total_usage" json:"totalUsage"`
}

func (UsageLimit) TableName() string {
	return "usage_limits"
}

// PlantDisease 对应 plant_diseases 表，只读参考数据。
type PlantDisease struct {
	DiseaseID      uint   `gorm:"primaryKey;autoIncrement;column:disease_id" json:"diseaseId"`
	Name           string `gorm:"type:varchar(100);not null;column:name" json:"name"`
	Symptoms       string `gorm:"type:text;column:symptoms" json:"symptoms"`
	Treatment      string `gorm:"type:text;column:treatment" json:"treatment"`
	Prevention     string `gorm:"type:text;column:prevention" json:"prevention"`
	AffectedPlants string `gorm:"type:text;column:affected_plants" json:"affectedPlants"`
}

func (PlantDisease) TableName() string {
	return "plant_diseases"
}
