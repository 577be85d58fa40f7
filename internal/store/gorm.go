package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/kostky-backend/internal/engine"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// roomRecord is the rooms table: one JSON document per room code.
type roomRecord struct {
	Code      string `gorm:"primaryKey;size:16"`
	Version   int    `gorm:"not null;default:0"`
	RoomData  string `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time
}

func (roomRecord) TableName() string { return "rooms" }

type Gorm struct {
	db *gorm.DB
}

// NewGorm opens gorm on top of an existing pgx pool so the room store and
// the leaderboard share connections.
func NewGorm(pool *pgxpool.Pool) (*Gorm, error) {
	sqlDB := stdlib.OpenDBFromPool(pool)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) Migrate(ctx context.Context) error {
	if err := g.db.WithContext(ctx).AutoMigrate(&roomRecord{}); err != nil {
		return fmt.Errorf("migrate rooms: %w", err)
	}
	return nil
}

func (g *Gorm) Load(ctx context.Context, code string) (Document, error) {
	var rec roomRecord
	err := g.db.WithContext(ctx).First(&rec, "code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("load room %s: %w", code, err)
	}

	room := engine.NewEmptyRoom()
	if err := json.Unmarshal([]byte(rec.RoomData), &room); err != nil {
		return Document{}, fmt.Errorf("decode room %s: %w", code, err)
	}
	return Document{Code: rec.Code, Version: rec.Version, Room: room.Clone(), UpdatedAt: rec.UpdatedAt}, nil
}

func (g *Gorm) Save(ctx context.Context, doc Document) error {
	raw, err := json.Marshal(doc.Room)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", doc.Code, err)
	}
	updated := doc.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	rec := roomRecord{Code: doc.Code, Version: doc.Version, RoomData: string(raw), UpdatedAt: updated}
	err = g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "room_data", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save room %s: %w", doc.Code, err)
	}
	return nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
