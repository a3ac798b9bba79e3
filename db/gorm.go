package db

import (
	"fmt"
	"net"
	"time"

	"sunobot/config"
	"sunobot/logger"
	"sunobot/model"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormDB 是 GORM 数据库连接实例
var GormDB *gorm.DB

// DSN 由配置生成 MySQL 连接串
func DSN(cfg *config.Config) string {
	dc := mysqldriver.NewConfig()
	dc.User = cfg.DBUser
	dc.Passwd = cfg.DBPassword
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(cfg.DBHost, cfg.DBPort)
	dc.DBName = cfg.DBName
	dc.ParseTime = true
	dc.Loc = time.Local
	dc.Params = map[string]string{"charset": "utf8mb4"}
	return dc.FormatDSN()
}

// ConnectGormDB 建立 GORM 数据库连接并迁移生成记录表
func ConnectGormDB(cfg *config.Config) error {
	var err error
	GormDB, err = gorm.Open(mysql.Open(DSN(cfg)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database with GORM: %w", err)
	}

	sqlDB, err := GormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := GormDB.AutoMigrate(&model.GenerationRecord{}); err != nil {
		return fmt.Errorf("failed to auto migrate models: %w", err)
	}

	logger.Info("connected to database", logger.String("host", cfg.DBHost), logger.String("db", cfg.DBName))
	return nil
}

// CloseGormDB 关闭 GORM 数据库连接
func CloseGormDB() error {
	if GormDB == nil {
		return nil
	}
	sqlDB, err := GormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
