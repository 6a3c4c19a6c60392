package repository

import (
	"errors"
	"fmt"
	"tani-assist-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrQuotaExceeded 表示当日调用次数已达上限，本次计数与日志均未写入。
var ErrQuotaExceeded = errors.New("daily quota exceeded")

// UsageRepository 定义了每日用量计数器的持久化操作。
type UsageRepository interface {
	// Get 返回用户的用量记录；不存在时返回计数为 0 的新记录（不落库）。
	Get(userID uint) (*model.UsageLimit, error)
	// Rollover 在 last_reset 早于 today 时把 daily_count 清零，rolledOver 表示本次调用是否执行了清零。
	Rollover(userID uint, today string) (usage *model.UsageLimit, rolledOver bool, err error)
	// RecordExchange 在同一事务中递增计数并写入对话日志。
	RecordExchange(conv *model.Conversation, today string, limit int) (*model.UsageLimit, error)
}

type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository 创建一个新的 UsageRepository 实例。
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) Get(userID uint) (*model.UsageLimit, error) {
	var usage model.UsageLimit
	err := r.db.First(&usage, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.UsageLimit{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch usage for user %d: %w", userID, err)
	}
	return &usage, nil
}

func (r *usageRepository) Rollover(userID uint, today string) (*model.UsageLimit, bool, error) {
	var rolledOver bool
	var usage model.UsageLimit
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var err error
		if rolledOver, err = rolloverTx(tx, userID, today); err != nil {
			return err
		}
		return tx.First(&usage, "user_id = ?", userID).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to roll over usage for user %d: %w", userID, err)
	}
	return &usage, rolledOver, nil
}

func (r *usageRepository) RecordExchange(conv *model.Conversation, today string, limit int) (*model.UsageLimit, error) {
	var usage model.UsageLimit
	err := r.db.Transaction(func(tx *gorm.DB) error {
		// 请求可能跨越午夜，先在同一事务中完成清零
		if _, err := rolloverTx(tx, conv.UserID, today); err != nil {
			return err
		}
		res := tx.Model(&model.UsageLimit{}).
			Where("user_id = ? AND daily_count < ?", conv.UserID, limit).
			Updates(map[string]interface{}{
				"daily_count": gorm.Expr("daily_count + 1"),
				"total_usage": gorm.Expr("total_usage + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrQuotaExceeded
		}
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		return tx.First(&usage, "user_id = ?", conv.UserID).Error
	})
	if errors.Is(err, ErrQuotaExceeded) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record exchange for user %d: %w", conv.UserID, err)
	}
	return &usage, nil
}

// rolloverTx 确保记录存在，并在 last_reset 早于 today 时清零（日期只会前进）。
// 带条件的 UPDATE 保证同一天只会清零一次。
func rolloverTx(tx *gorm.DB, userID uint, today string) (bool, error) {
	if err := ensureUsageRow(tx, userID, today); err != nil {
		return false, err
	}
	res := tx.Model(&model.UsageLimit{}).
		Where("user_id = ? AND last_reset < ?", userID, today).
		Updates(map[string]interface{}{"daily_count": 0, "last_reset": today})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ensureUsageRow 在记录不存在时插入一行当日的初始记录。
func ensureUsageRow(tx *gorm.DB, userID uint, today string) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.UsageLimit{UserID: userID, LastReset: today}).Error
}
