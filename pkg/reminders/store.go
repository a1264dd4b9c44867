// Package reminders stores per-user reminder groups and decides which of them
// fire for a given message.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tinyland-inc/telecord/pkg/logger"
)

const (
	DefaultMaxGroupsPerUser = 25
	DefaultMaxTextsPerGroup = 10
)

var (
	ErrGroupNotFound      = errors.New("reminder group not found")
	ErrGroupAlreadyExists = errors.New("reminder group already exists")
	ErrTextExists         = errors.New("reminder text already exists in group")
	ErrTextNotFound       = errors.New("reminder text not found in group")
	ErrLimitReached       = errors.New("reminder limit reached")
	ErrEmptyText          = errors.New("reminder text is empty")
	ErrEmptyName          = errors.New("reminder group name is empty")
)

type groupRecord struct {
	ID        uint         `gorm:"primaryKey"`
	UserID    int64        `gorm:"not null;uniqueIndex:idx_reminder_groups_user_name"`
	Name      string       `gorm:"not null;uniqueIndex:idx_reminder_groups_user_name"`
	Texts     []textRecord `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
}

func (groupRecord) TableName() string { return "reminder_groups" }

type textRecord struct {
	ID         uint   `gorm:"primaryKey"`
	GroupID    uint   `gorm:"not null;uniqueIndex:idx_reminder_texts_group_normalized"`
	Text       string `gorm:"not null"`
	Normalized string `gorm:"not null;uniqueIndex:idx_reminder_texts_group_normalized"`
	CreatedAt  time.Time
}

func (textRecord) TableName() string { return "reminder_texts" }

// Models lists the tables owned by this package for auto-migration.
func Models() []any {
	return []any{&groupRecord{}, &textRecord{}}
}

type Limits struct {
	MaxGroupsPerUser int
	MaxTextsPerGroup int
}

type Store struct {
	db     *gorm.DB
	limits Limits
}

// NewStore returns a Store; zero limits fall back to the defaults.
func NewStore(db *gorm.DB, limits Limits) *Store {
	if limits.MaxGroupsPerUser <= 0 {
		limits.MaxGroupsPerUser = DefaultMaxGroupsPerUser
	}
	if limits.MaxTextsPerGroup <= 0 {
		limits.MaxTextsPerGroup = DefaultMaxTextsPerGroup
	}
	return &Store{db: db, limits: limits}
}

func (s *Store) Limits() Limits { return s.limits }

// CreateGroup creates a group holding texts. Texts that sanitize to the same
// form are stored once.
func (s *Store) CreateGroup(ctx context.Context, userID int64, name string, texts []string) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, ErrEmptyName
	}

	records := make([]textRecord, 0, len(texts))
	seen := make(map[string]bool, len(texts))
	for _, t := range texts {
		t = strings.TrimSpace(t)
		n := Sanitize(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		records = append(records, textRecord{Text: t, Normalized: n})
	}
	if len(records) == 0 {
		return Group{}, ErrEmptyText
	}
	if len(records) > s.limits.MaxTextsPerGroup {
		return Group{}, fmt.Errorf("%w: at most %d texts per group", ErrLimitReached, s.limits.MaxTextsPerGroup)
	}

	rec := groupRecord{UserID: userID, Name: name, Texts: records}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&groupRecord{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(s.limits.MaxGroupsPerUser) {
			return fmt.Errorf("%w: at most %d groups per user", ErrLimitReached, s.limits.MaxGroupsPerUser)
		}

		var exists int64
		if err := tx.Model(&groupRecord{}).Where("user_id = ? AND name = ?", userID, name).Count(&exists).Error; err != nil {
			return err
		}
		if exists > 0 {
			return ErrGroupAlreadyExists
		}

		if err := tx.Create(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrGroupAlreadyExists
			}
			return fmt.Errorf("create reminder group: %w", err)
		}
		return nil
	})
	if err != nil {
		return Group{}, err
	}

	logger.InfoCF("reminders", "Reminder group created", map[string]any{
		"user_id": userID,
		"group":   name,
		"texts":   len(records),
	})
	return rec.toGroup(), nil
}

func (s *Store) AddText(ctx context.Context, userID int64, name, text string) error {
	text = strings.TrimSpace(text)
	normalized := Sanitize(text)
	if normalized == "" {
		return ErrEmptyText
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := findGroup(tx, userID, name)
		if err != nil {
			return err
		}

		var exists int64
		if err := tx.Model(&textRecord{}).Where("group_id = ? AND normalized = ?", g.ID, normalized).Count(&exists).Error; err != nil {
			return err
		}
		if exists > 0 {
			return ErrTextExists
		}

		var count int64
		if err := tx.Model(&textRecord{}).Where("group_id = ?", g.ID).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(s.limits.MaxTextsPerGroup) {
			return fmt.Errorf("%w: at most %d texts per group", ErrLimitReached, s.limits.MaxTextsPerGroup)
		}

		if err := tx.Create(&textRecord{GroupID: g.ID, Text: text, Normalized: normalized}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrTextExists
			}
			return fmt.Errorf("create reminder text: %w", err)
		}
		return nil
	})
}

// RemoveText removes text from the group. Removing the last text deletes the
// group in the same transaction; groupDeleted reports whether that happened.
func (s *Store) RemoveText(ctx context.Context, userID int64, name, text string) (groupDeleted bool, err error) {
	normalized := Sanitize(text)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := findGroup(tx, userID, name)
		if err != nil {
			return err
		}

		res := tx.Where("group_id = ? AND normalized = ?", g.ID, normalized).Delete(&textRecord{})
		if res.Error != nil {
			return fmt.Errorf("delete reminder text: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrTextNotFound
		}

		var remaining int64
		if err := tx.Model(&textRecord{}).Where("group_id = ?", g.ID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		if err := tx.Delete(&groupRecord{}, g.ID).Error; err != nil {
			return fmt.Errorf("delete empty reminder group: %w", err)
		}
		groupDeleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return groupDeleted, nil
}

func (s *Store) DeleteGroup(ctx context.Context, userID int64, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := findGroup(tx, userID, name)
		if err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", g.ID).Delete(&textRecord{}).Error; err != nil {
			return fmt.Errorf("delete reminder texts: %w", err)
		}
		if err := tx.Delete(&groupRecord{}, g.ID).Error; err != nil {
			return fmt.Errorf("delete reminder group: %w", err)
		}
		return nil
	})
}

// ListGroups returns the user's groups ordered by name.
func (s *Store) ListGroups(ctx context.Context, userID int64) ([]Group, error) {
	var recs []groupRecord
	err := s.withTexts(ctx).Where("user_id = ?", userID).Order("name ASC").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list reminder groups: %w", err)
	}
	return toGroups(recs), nil
}

func (s *Store) ListAllGroups(ctx context.Context) ([]Group, error) {
	var recs []groupRecord
	err := s.withTexts(ctx).Order("user_id ASC, name ASC").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list reminder groups: %w", err)
	}
	return toGroups(recs), nil
}

// FindMatchingGroups returns, per user, the groups that fire for message.
func (s *Store) FindMatchingGroups(ctx context.Context, message string) (map[int64][]string, error) {
	groups, err := s.ListAllGroups(ctx)
	if err != nil {
		return nil, err
	}
	return Match(message, groups), nil
}

func (s *Store) withTexts(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Texts", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	})
}

func findGroup(tx *gorm.DB, userID int64, name string) (groupRecord, error) {
	var g groupRecord
	err := tx.Where("user_id = ? AND name = ?", userID, strings.TrimSpace(name)).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return groupRecord{}, ErrGroupNotFound
	}
	if err != nil {
		return groupRecord{}, fmt.Errorf("find reminder group: %w", err)
	}
	return g, nil
}

func (g groupRecord) toGroup() Group {
	texts := make([]string, len(g.Texts))
	for i, t := range g.Texts {
		texts[i] = t.Text
	}
	return Group{UserID: g.UserID, Name: g.Name, Texts: texts}
}

func toGroups(recs []groupRecord) []Group {
	out := make([]Group, len(recs))
	for i, r := range recs {
		out[i] = r.toGroup()
	}
	return out
}
