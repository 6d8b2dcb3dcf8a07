package repository

import (
	"github.com/Scl-Ywr/confession-wall-sub002/internal/config"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func InitDB(cfg config.Database) (*gorm.DB, error) {
	return Open(cfg.DSN())
}

// Open connects to dsn and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Friendship{},
		&models.Group{},
		&models.GroupMember{},
		&models.Conversation{},
		&models.Message{},
		&models.DirectReadCursor{},
		&models.GroupReadEntry{},
		&models.PresenceRecord{},
		&models.TopicSequence{},
	)
}
