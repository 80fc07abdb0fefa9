// Package sqlitestore is a single-file message and account store for
// deployments without Postgres.
package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roomchat/internal/chat"
	"roomchat/internal/user"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type userRecord struct {
	ID        int    `gorm:"primaryKey"`
	Username  string `gorm:"size:50;uniqueIndex;not null"`
	Firstname string `gorm:"size:100;not null"`
	Lastname  string `gorm:"size:100;not null"`
	Password  string `gorm:"size:255;not null"`
	CreatedAt time.Time
}

func (userRecord) TableName() string { return "users" }

type groupMessageRecord struct {
	ID       int64     `gorm:"primaryKey"`
	FromUser string    `gorm:"size:50;not null"`
	Room     string    `gorm:"size:50;not null;index:idx_group_messages_room_date_sent,priority:1"`
	Message  string    `gorm:"type:text;not null"`
	DateSent time.Time `gorm:"not null;index:idx_group_messages_room_date_sent,priority:2"`
}

func (groupMessageRecord) TableName() string { return "group_messages" }

type privateMessageRecord struct {
	ID       int64     `gorm:"primaryKey"`
	FromUser string    `gorm:"size:50;not null;index:idx_private_messages_pair,priority:1"`
	ToUser   string    `gorm:"size:50;not null;index:idx_private_messages_pair,priority:2"`
	Message  string    `gorm:"type:text;not null"`
	DateSent time.Time `gorm:"not null"`
}

func (privateMessageRecord) TableName() string { return "private_messages" }

// Store implements chat.MessageStore and user.Store on SQLite.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var (
	_ chat.MessageStore = (*Store)(nil)
	_ user.Store        = (*Store)(nil)
)

// Open opens (creating if needed) the database at path and migrates the
// schema. Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases shared.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRecord{}, &groupMessageRecord{}, &privateMessageRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) AppendGroupMessage(ctx context.Context, sender, room, body string) (*chat.GroupMessage, error) {
	rec := groupMessageRecord{FromUser: sender, Room: room, Message: body, DateSent: s.now().UTC()}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("insert group message: %w", err)
	}
	return rec.toMessage(), nil
}

func (s *Store) AppendPrivateMessage(ctx context.Context, sender, recipient, body string) (*chat.PrivateMessage, error) {
	rec := privateMessageRecord{FromUser: sender, ToUser: recipient, Message: body, DateSent: s.now().UTC()}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("insert private message: %w", err)
	}
	return &chat.PrivateMessage{
		ID:       rec.ID,
		FromUser: rec.FromUser,
		ToUser:   rec.ToUser,
		Message:  rec.Message,
		DateSent: rec.DateSent,
	}, nil
}

func (s *Store) ListGroupMessages(ctx context.Context, room string, limit int) ([]*chat.GroupMessage, error) {
	var recs []groupMessageRecord
	err := s.db.WithContext(ctx).
		Where("room = ?", room).
		Order("date_sent ASC, id ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("query group messages: %w", err)
	}

	msgs := make([]*chat.GroupMessage, len(recs))
	for i := range recs {
		msgs[i] = recs[i].toMessage()
	}
	return msgs, nil
}

func (r *groupMessageRecord) toMessage() *chat.GroupMessage {
	return &chat.GroupMessage{
		ID:       r.ID,
		FromUser: r.FromUser,
		Room:     r.Room,
		Message:  r.Message,
		DateSent: r.DateSent,
	}
}

func (s *Store) CreateUser(ctx context.Context, u *user.User) (*user.User, error) {
	rec := userRecord{
		Username:  u.Username,
		Firstname: u.Firstname,
		Lastname:  u.Lastname,
		Password:  u.Password,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, user.ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	u.ID = rec.ID
	u.CreatedAt = rec.CreatedAt
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	var rec userRecord
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrUserNotFound
		}
		return nil, err
	}
	return &user.User{
		ID:        rec.ID,
		Username:  rec.Username,
		Firstname: rec.Firstname,
		Lastname:  rec.Lastname,
		Password:  rec.Password,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&userRecord{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ListUsernames(ctx context.Context, exclude string, limit int) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Model(&userRecord{}).
		Where("username <> ?", exclude).
		Order("username").
		Limit(limit).
		Pluck("username", &names).Error
	return names, err
}
