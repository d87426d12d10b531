package database

import (
	"time"

	"github.com/MarcoPoloResearchLab/chatreplica/internal/replica"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillPostProps      = "2026-09-02_backfill_post_props"
	migrationBackfillChannelHistory = "2026-09-02_backfill_team_channel_history"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillPostProps, apply: backfillPostProps},
		{name: migrationBackfillChannelHistory, apply: backfillTeamChannelHistory},
	}

	for _, migration := range migrations {
		var applied int64
		if err := db.Model(&migrationRecord{}).Where("name = ?", migration.name).Count(&applied).Error; err != nil {
			return err
		}
		if applied > 0 {
			continue
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Posts written before props were projected carry NULL instead of an empty object.
func backfillPostProps(db *gorm.DB) error {
	return db.Model(&replica.Post{}).
		Where("props IS NULL OR props = ?", "null").
		Update("props", gorm.Expr("?", "{}")).Error
}

func backfillTeamChannelHistory(db *gorm.DB) error {
	return db.Model(&replica.TeamChannelHistory{}).
		Where("channel_ids IS NULL OR channel_ids = ?", "null").
		Update("channel_ids", gorm.Expr("?", "[]")).Error
}
