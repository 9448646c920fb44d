package mysql

import (
	"log"
	"sync"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/example/paygate/internal/config"
	"github.com/example/paygate/internal/datamodels/order"
	"github.com/example/paygate/internal/datamodels/product"
	"github.com/example/paygate/internal/datamodels/user"
)

var (
	db   *gorm.DB
	once sync.Once
)

// Init 初始化全局 GORM 实例并自动迁移表结构。
// TranslateError 打开后，唯一键冲突统一表现为 gorm.ErrDuplicatedKey，
// 供下单侧的 external_id 冲突重试使用。
func Init(cfg *config.MySQLConfig) *gorm.DB {
	once.Do(func() {
		var err error
		db, err = gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{TranslateError: true})
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}

		if err = db.AutoMigrate(&user.User{}, &product.Product{}, &order.Order{}, &order.Item{}); err != nil {
			log.Fatalf("auto migrate failed: %v", err)
		}
	})
	return db
}

// DB 获取全局 DB
func DB() *gorm.DB {
	return db
}
