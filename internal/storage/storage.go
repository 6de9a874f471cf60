package storage

import (
	"claimchat/backend/internal/models"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate is returned when an insert hits a uniqueness constraint.
	ErrDuplicate = errors.New("storage: duplicate key")
)

const uniqueViolation = "23505"

// Storage is the system of record for rooms, messages, items and users.
type Storage interface {
	ListRoomsByItem(ctx context.Context, itemID string) ([]models.ClaimRoom, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]models.ClaimRoom, error)
	FindRoom(ctx context.Context, itemID, claimerID string) (*models.ClaimRoom, error)
	GetRoomByID(ctx context.Context, roomID string) (*models.ClaimRoom, error)
	InsertRoom(ctx context.Context, room *models.ClaimRoom) error
	ApproveRoom(ctx context.Context, roomID string) (bool, error)

	SaveMessage(ctx context.Context, msg *models.ChatMessage) error
	GetChatHistory(ctx context.Context, roomID string) ([]models.ChatMessage, error)

	GetItem(ctx context.Context, itemID string) (*models.Item, error)

	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	SaveUserIfNotExists(ctx context.Context, user *models.User) error
	LinkTelegramChat(ctx context.Context, userID string, chatID int64, language string) error
}

type Service struct {
	DB *gorm.DB
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// Open connects using one of the supported drivers:
// "pgx" (default), "postgres" (database/sql via lib/pq) or "sqlite".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "pgx":
		dialector = postgres.Open(dsn)
	case "postgres":
		dialector = postgres.New(postgres.Config{DriverName: "postgres", DSN: dsn})
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	return db, nil
}

// Migrate creates or updates the tables this service owns or reads.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ClaimRoom{},
		&models.ChatMessage{},
		&models.Item{},
		&models.User{},
	)
}

// ListRoomsByItem returns all rooms of an item, oldest first.
func (s *Service) ListRoomsByItem(ctx context.Context, itemID string) ([]models.ClaimRoom, error) {
	var rooms []models.ClaimRoom
	if err := s.DB.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at asc, id asc").
		Find(&rooms).Error; err != nil {
		slog.ErrorContext(ctx, "failed to list rooms", "item_id", itemID, "error", err)
		return nil, err
	}
	return rooms, nil
}

// ListRoomsForUser returns rooms where the user is the claimer plus rooms on
// items the user reported.
func (s *Service) ListRoomsForUser(ctx context.Context, userID string) ([]models.ClaimRoom, error) {
	reported := s.DB.Model(&models.Item{}).Select("id").Where("reporter_id = ?", userID)

	var rooms []models.ClaimRoom
	if err := s.DB.WithContext(ctx).
		Where("claimer_id = ?", userID).
		Or("item_id IN (?)", reported).
		Order("created_at asc, id asc").
		Find(&rooms).Error; err != nil {
		slog.ErrorContext(ctx, "failed to list rooms for user", "user_id", userID, "error", err)
		return nil, err
	}
	return rooms, nil
}

// FindRoom returns the room for an (item, claimer) pair or ErrNotFound.
func (s *Service) FindRoom(ctx context.Context, itemID, claimerID string) (*models.ClaimRoom, error) {
	var room models.ClaimRoom
	err := s.DB.WithContext(ctx).
		Where("item_id = ? AND claimer_id = ?", itemID, claimerID).
		First(&room).Error
	if err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

func (s *Service) GetRoomByID(ctx context.Context, roomID string) (*models.ClaimRoom, error) {
	var room models.ClaimRoom
	if err := s.DB.WithContext(ctx).Where("id = ?", roomID).First(&room).Error; err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

// InsertRoom makes a single insert attempt. A concurrent insert for the same
// (item, claimer) pair surfaces as ErrDuplicate.
func (s *Service) InsertRoom(ctx context.Context, room *models.ClaimRoom) error {
	if err := s.DB.WithContext(ctx).Create(room).Error; err != nil {
		return translate(err)
	}
	return nil
}

// ApproveRoom moves a room from pending to approved. It reports false when
// the room was already approved (or does not exist); the update is a no-op then.
func (s *Service) ApproveRoom(ctx context.Context, roomID string) (bool, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.ClaimRoom{}).
		Where("id = ? AND approval_status = ?", roomID, models.ApprovalPending).
		Update("approval_status", models.ApprovalApproved)
	if res.Error != nil {
		slog.ErrorContext(ctx, "failed to approve room", "room_id", roomID, "error", res.Error)
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SaveMessage persists a message; ID and CreatedAt are filled in when empty.
func (s *Service) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		slog.ErrorContext(ctx, "failed to save message", "room_id", msg.RoomID, "error", err)
		return translate(err)
	}
	return nil
}

// GetChatHistory returns the full history of a room in authoritative order.
func (s *Service) GetChatHistory(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	var history []models.ChatMessage
	if err := s.DB.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at asc, seq asc, id asc").
		Find(&history).Error; err != nil {
		slog.ErrorContext(ctx, "failed to get chat history", "room_id", roomID, "error", err)
		return nil, err
	}
	return history, nil
}

func (s *Service) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	var item models.Item
	if err := s.DB.WithContext(ctx).Where("id = ?", itemID).First(&item).Error; err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

// UpsertItem writes an item listing. The service only reads items; this is
// for seeding and admin tooling.
func (s *Service) UpsertItem(ctx context.Context, item *models.Item) error {
	if err := s.DB.WithContext(ctx).Save(item).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (s *Service) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// SaveUserIfNotExists stores the user on first contact and loads the stored
// row into user otherwise.
func (s *Service) SaveUserIfNotExists(ctx context.Context, user *models.User) error {
	result := s.DB.WithContext(ctx).Where("id = ?", user.ID).FirstOrCreate(user)
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to save user on first contact", "user_id", user.ID, "error", result.Error)
		return result.Error
	}
	if result.RowsAffected > 0 {
		slog.InfoContext(ctx, "new user saved", "user_id", user.ID)
	}
	return nil
}

// LinkTelegramChat attaches a Telegram chat to an existing user. A chat that
// already belongs to another user is reported as ErrDuplicate.
func (s *Service) LinkTelegramChat(ctx context.Context, userID string, chatID int64, language string) error {
	updates := map[string]any{"telegram_chat_id": chatID}
	if language != "" {
		updates["language"] = language
	}
	res := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		slog.ErrorContext(ctx, "failed to link telegram chat", "user_id", userID, "error", res.Error)
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// translate maps driver errors onto the storage sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	// SQLite without error translation
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
