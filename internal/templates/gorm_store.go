package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/meeting-timer-backend/internal/agenda"
)

type templateRow struct {
	Name      string         `gorm:"primaryKey;size:64"`
	Phases    []agenda.Phase `gorm:"serializer:json;not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (templateRow) TableName() string { return "agenda_templates" }

// GormStore keeps templates in Postgres.
type GormStore struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn with gorm's pgx-backed postgres driver.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// NewGormStore migrates the schema and inserts any missing presets. Presets
// already in the table are left as they are.
func NewGormStore(ctx context.Context, db *gorm.DB) (*GormStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&templateRow{}); err != nil {
		return nil, fmt.Errorf("migrate templates: %w", err)
	}
	for _, t := range Presets() {
		row := templateRow{Name: t.Name, Phases: t.Phases}
		err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
		if err != nil {
			return nil, fmt.Errorf("seed template %q: %w", t.Name, err)
		}
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) List(ctx context.Context) ([]Template, error) {
	var rows []templateRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	out := make([]Template, 0, len(rows))
	for _, r := range rows {
		out = append(out, clone(Template{Name: r.Name, Phases: r.Phases}))
	}
	return out, nil
}

func (s *GormStore) Get(ctx context.Context, name string) (Template, error) {
	var row templateRow
	err := s.db.WithContext(ctx).First(&row, "name = ?", strings.ToLower(strings.TrimSpace(name))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Template{}, ErrNotFound
	}
	if err != nil {
		return Template{}, fmt.Errorf("get template %q: %w", name, err)
	}
	return clone(Template{Name: row.Name, Phases: row.Phases}), nil
}

func (s *GormStore) Put(ctx context.Context, t Template) error {
	if err := Validate(&t, agenda.Rules{}); err != nil {
		return err
	}
	row := templateRow{Name: t.Name, Phases: t.Phases}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"phases", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("put template %q: %w", t.Name, err)
	}
	return nil
}
