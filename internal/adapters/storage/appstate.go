package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

// AppState stores the mutable application state (users, dashboard layout,
// geofences, scan sessions) through GORM, attached to the pool's writer
// connection so the single-writer rule still holds.
type AppState struct {
	db *gorm.DB
}

// UserModel is the GORM model for operator accounts.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex"`
	PasswordHash string
	TokenHash    string
	CreatedAt    time.Time
	LastLogin    time.Time
}

func (UserModel) TableName() string { return "users" }

// DashboardModel stores the widget layout as a single JSON document.
type DashboardModel struct {
	ID      uint `gorm:"primaryKey"`
	Payload string
	Updated time.Time
}

func (DashboardModel) TableName() string { return "dashboard_settings" }

// GeofenceModel is the GORM model for geofences.
type GeofenceModel struct {
	Name         string `gorm:"primaryKey"`
	Points       string // JSON encoded []domain.Position
	EnterMessage string
	ExitMessage  string
	Inside       bool
	UpdatedAt    time.Time
}

func (GeofenceModel) TableName() string { return "geofences" }

// ScanSessionModel is the GORM model for scan sessions.
type ScanSessionModel struct {
	ID         string `gorm:"primaryKey"`
	StartedAt  time.Time
	FinishedAt *time.Time
	Notes      string
}

func (ScanSessionModel) TableName() string { return "scan_sessions" }

// NewAppState attaches GORM to the pool's writer and migrates the app-state
// tables.
func NewAppState(pool *Pool) (*AppState, error) {
	db, err := gorm.Open(sqlite.Dialector{Conn: pool.Writer()}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, classify("open_appstate", err)
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, classify("trace_plugin", err)
	}

	if err := db.AutoMigrate(&UserModel{}, &DashboardModel{}, &GeofenceModel{}, &ScanSessionModel{}); err != nil {
		return nil, classify("migrate_appstate", err)
	}

	db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_started ON scan_sessions(started_at)")

	return &AppState{db: db}, nil
}

// SaveUser creates or updates a user.
func (a *AppState) SaveUser(ctx context.Context, user *domain.User) error {
	model := UserModel{
		ID:           user.ID,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		TokenHash:    user.TokenHash,
		CreatedAt:    user.CreatedAt,
		LastLogin:    user.LastLogin,
	}
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&model).Error
}

// UserByUsername retrieves a user by name.
func (a *AppState) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var model UserModel
	if err := a.db.WithContext(ctx).Where("username = ?", username).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return userFromModel(model), nil
}

// UserByTokenHash retrieves the user owning an active bearer token.
func (a *AppState) UserByTokenHash(ctx context.Context, tokenHash string) (*domain.User, error) {
	var model UserModel
	if err := a.db.WithContext(ctx).Where("token_hash = ? AND token_hash != ''", tokenHash).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return userFromModel(model), nil
}

func userFromModel(m UserModel) *domain.User {
	return &domain.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		TokenHash:    m.TokenHash,
		CreatedAt:    m.CreatedAt,
		LastLogin:    m.LastLogin,
	}
}

// SaveDashboard persists the widget layout.
func (a *AppState) SaveDashboard(ctx context.Context, settings *domain.DashboardSettings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	model := DashboardModel{ID: 1, Payload: string(payload), Updated: time.Now().UTC()}
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&model).Error
}

// Dashboard returns the stored layout, or an empty one when none is saved.
func (a *AppState) Dashboard(ctx context.Context) (*domain.DashboardSettings, error) {
	var model DashboardModel
	if err := a.db.WithContext(ctx).First(&model, "id = 1").Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.DashboardSettings{Widgets: []string{}}, nil
		}
		return nil, err
	}
	var settings domain.DashboardSettings
	if err := json.Unmarshal([]byte(model.Payload), &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// SaveGeofence creates or replaces a geofence.
func (a *AppState) SaveGeofence(ctx context.Context, g *domain.Geofence) error {
	points, err := json.Marshal(g.Points)
	if err != nil {
		return err
	}
	model := GeofenceModel{
		Name:         g.Name,
		Points:       string(points),
		EnterMessage: g.EnterMessage,
		ExitMessage:  g.ExitMessage,
		Inside:       g.Inside,
		UpdatedAt:    time.Now().UTC(),
	}
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&model).Error
}

// GeofenceByName retrieves one geofence.
func (a *AppState) GeofenceByName(ctx context.Context, name string) (*domain.Geofence, error) {
	var model GeofenceModel
	if err := a.db.WithContext(ctx).First(&model, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return geofenceFromModel(model)
}

// Geofences returns all geofences ordered by name.
func (a *AppState) Geofences(ctx context.Context) ([]*domain.Geofence, error) {
	var models []GeofenceModel
	if err := a.db.WithContext(ctx).Order("name").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Geofence, 0, len(models))
	for _, m := range models {
		g, err := geofenceFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// DeleteGeofence removes a geofence by name.
func (a *AppState) DeleteGeofence(ctx context.Context, name string) error {
	res := a.db.WithContext(ctx).Delete(&GeofenceModel{}, "name = ?", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func geofenceFromModel(m GeofenceModel) (*domain.Geofence, error) {
	var points []domain.Position
	if err := json.Unmarshal([]byte(m.Points), &points); err != nil {
		return nil, err
	}
	return &domain.Geofence{
		Name:         m.Name,
		Points:       points,
		EnterMessage: m.EnterMessage,
		ExitMessage:  m.ExitMessage,
		Inside:       m.Inside,
	}, nil
}

// StartSession opens a new scan session.
func (a *AppState) StartSession(ctx context.Context, s *domain.ScanSession) error {
	model := ScanSessionModel{ID: s.ID, StartedAt: s.StartedAt, Notes: s.Notes}
	return a.db.WithContext(ctx).Create(&model).Error
}

// EndSession marks a session finished.
func (a *AppState) EndSession(ctx context.Context, id string, at time.Time) error {
	res := a.db.WithContext(ctx).Model(&ScanSessionModel{}).
		Where("id = ? AND finished_at IS NULL", id).
		Update("finished_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Sessions lists scan sessions, newest first.
func (a *AppState) Sessions(ctx context.Context, limit int) ([]*domain.ScanSession, error) {
	var models []ScanSessionModel
	if err := a.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.ScanSession, 0, len(models))
	for _, m := range models {
		out = append(out, &domain.ScanSession{
			ID:         m.ID,
			StartedAt:  m.StartedAt,
			FinishedAt: m.FinishedAt,
			Notes:      m.Notes,
		})
	}
	return out, nil
}
