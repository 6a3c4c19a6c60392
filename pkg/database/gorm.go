package database

import (
	"fmt"
	"os"
	"path/filepath"
	"tani-assist-go/internal/model"
	"tani-assist-go/pkg/log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open 根据驱动名称打开 gorm 连接，driver 取值 sqlite 或 mysql。
// sqlite 的 DSN 为文件路径，"memory" 表示共享内存库。
func Open(driver, dsn string) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	switch driver {
	case "mysql":
		return gorm.Open(mysql.Open(dsn), gormConfig)
	case "sqlite", "":
		if dsn == "" || dsn == "memory" {
			dsn = "file::memory:?cache=shared"
		} else if dir := filepath.Dir(dsn); dir != "." && dir != "/" {
			// 确保 SQLite 文件所在目录存在
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("创建数据库目录失败: %w", err)
			}
		}
		db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
		if err != nil {
			return nil, err
		}
		// PRAGMA 只作用于当前连接，单连接保证外键约束始终生效
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("开启外键约束失败: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", driver)
	}
}

// Migrate 创建或更新全部业务表。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.UsageLimit{},
		&model.Conversation{},
		&model.PlantDisease{},
	)
}

// InitDB 初始化数据库连接并完成表结构迁移。
func InitDB(driver, dsn string) {
	var err error
	DB, err = Open(driver, dsn)
	if err != nil {
		log.Fatal("failed to connect database", err)
	}

	// 配置连接池
	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB", err)
	}
	if driver == "mysql" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := Migrate(DB); err != nil {
		log.Fatal("failed to migrate database", err)
	}

	log.Infof("Database (%s) connected and migrated successfully", driver)
}
