// Package channels persists the monitored Telegram channels and the Discord
// channels they are forwarded to, and caches both lists in memory.
package channels

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tinyland-inc/telecord/pkg/logger"
)

var (
	ErrChannelNotFound      = errors.New("channel not found")
	ErrChannelAlreadyExists = errors.New("channel already exists")
)

// SourceChannel is a monitored Telegram broadcast channel. Forward controls
// whether its posts reach the destination channels; reminder matching runs
// either way.
type SourceChannel struct {
	ID       int64     `gorm:"column:channel_id;primaryKey;autoIncrement:false"`
	Username string    `gorm:"uniqueIndex;not null"`
	Forward  bool      `gorm:"not null"`
	AddedAt  time.Time `gorm:"autoCreateTime;index"`
}

func (SourceChannel) TableName() string { return "source_channels" }

// DestinationChannel is a Discord text channel that receives forwarded posts.
type DestinationChannel struct {
	ID      int64     `gorm:"column:channel_id;primaryKey;autoIncrement:false"`
	AddedAt time.Time `gorm:"autoCreateTime;index"`
}

func (DestinationChannel) TableName() string { return "destination_channels" }

// Models lists the tables owned by this package for auto-migration.
func Models() []any {
	return []any{&SourceChannel{}, &DestinationChannel{}}
}

type Registry struct {
	db *gorm.DB

	mu    sync.RWMutex
	gen   uint64
	cache *snapshot // nil when stale
}

type snapshot struct {
	sources      []SourceChannel
	destinations []DestinationChannel
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

func (r *Registry) AddSourceChannel(ctx context.Context, ch SourceChannel) error {
	var count int64
	err := r.db.WithContext(ctx).Model(&SourceChannel{}).
		Where("channel_id = ? OR username = ?", ch.ID, ch.Username).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("find source channel: %w", err)
	}
	if count > 0 {
		return ErrChannelAlreadyExists
	}

	if err := r.db.WithContext(ctx).Create(&ch).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrChannelAlreadyExists
		}
		return fmt.Errorf("create source channel: %w", err)
	}

	r.invalidate()
	logger.InfoCF("channels", "Source channel added", map[string]any{
		"channel_id": ch.ID,
		"username":   ch.Username,
		"forward":    ch.Forward,
	})
	return nil
}

func (r *Registry) RemoveSourceChannel(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Where("channel_id = ?", id).Delete(&SourceChannel{})
	if res.Error != nil {
		return fmt.Errorf("delete source channel: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrChannelNotFound
	}

	r.invalidate()
	logger.InfoCF("channels", "Source channel removed", map[string]any{"channel_id": id})
	return nil
}

func (r *Registry) GetSourceChannel(ctx context.Context, id int64) (SourceChannel, error) {
	var ch SourceChannel
	err := r.db.WithContext(ctx).Where("channel_id = ?", id).First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SourceChannel{}, ErrChannelNotFound
	}
	if err != nil {
		return SourceChannel{}, fmt.Errorf("find source channel: %w", err)
	}
	return ch, nil
}

// FindSourceChannelByUsername matches usernames case-insensitively, as
// Telegram does.
func (r *Registry) FindSourceChannelByUsername(ctx context.Context, username string) (SourceChannel, error) {
	var ch SourceChannel
	err := r.db.WithContext(ctx).Where("LOWER(username) = LOWER(?)", username).First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SourceChannel{}, ErrChannelNotFound
	}
	if err != nil {
		return SourceChannel{}, fmt.Errorf("find source channel: %w", err)
	}
	return ch, nil
}

// SetForward toggles whether a source channel's posts are forwarded.
func (r *Registry) SetForward(ctx context.Context, id int64, forward bool) error {
	res := r.db.WithContext(ctx).Model(&SourceChannel{}).
		Where("channel_id = ?", id).
		Update("forward", forward)
	if res.Error != nil {
		return fmt.Errorf("update source channel: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrChannelNotFound
	}
	r.invalidate()
	return nil
}

// ListSourceChannels returns the monitored channels, newest first.
func (r *Registry) ListSourceChannels(ctx context.Context) ([]SourceChannel, error) {
	snap, err := r.load(ctx, false)
	if err != nil {
		return nil, err
	}
	return slices.Clone(snap.sources), nil
}

func (r *Registry) AddDestinationChannel(ctx context.Context, id int64) error {
	var count int64
	err := r.db.WithContext(ctx).Model(&DestinationChannel{}).
		Where("channel_id = ?", id).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("find destination channel: %w", err)
	}
	if count > 0 {
		return ErrChannelAlreadyExists
	}

	if err := r.db.WithContext(ctx).Create(&DestinationChannel{ID: id}).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrChannelAlreadyExists
		}
		return fmt.Errorf("create destination channel: %w", err)
	}

	r.invalidate()
	logger.InfoCF("channels", "Destination channel added", map[string]any{"channel_id": id})
	return nil
}

func (r *Registry) RemoveDestinationChannel(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Where("channel_id = ?", id).Delete(&DestinationChannel{})
	if res.Error != nil {
		return fmt.Errorf("delete destination channel: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrChannelNotFound
	}

	r.invalidate()
	logger.InfoCF("channels", "Destination channel removed", map[string]any{"channel_id": id})
	return nil
}

// ListDestinationChannels returns the forwarding targets, newest first.
func (r *Registry) ListDestinationChannels(ctx context.Context) ([]DestinationChannel, error) {
	snap, err := r.load(ctx, false)
	if err != nil {
		return nil, err
	}
	return slices.Clone(snap.destinations), nil
}

// Snapshot returns both lists as read together, from the cache when it is
// current.
func (r *Registry) Snapshot(ctx context.Context) ([]SourceChannel, []DestinationChannel, error) {
	snap, err := r.load(ctx, false)
	if err != nil {
		return nil, nil, err
	}
	return slices.Clone(snap.sources), slices.Clone(snap.destinations), nil
}

// Refresh is Snapshot that always reads the database. It picks up rows
// written by other processes.
func (r *Registry) Refresh(ctx context.Context) ([]SourceChannel, []DestinationChannel, error) {
	snap, err := r.load(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	return slices.Clone(snap.sources), slices.Clone(snap.destinations), nil
}

// load returns the cached lists or reads them. A read is cached only if no
// mutation invalidated the cache while it ran.
func (r *Registry) load(ctx context.Context, force bool) (*snapshot, error) {
	r.mu.RLock()
	cached, gen := r.cache, r.gen
	r.mu.RUnlock()
	if cached != nil && !force {
		return cached, nil
	}

	snap := &snapshot{}
	if err := r.db.WithContext(ctx).Order("added_at DESC").Find(&snap.sources).Error; err != nil {
		return nil, fmt.Errorf("list source channels: %w", err)
	}
	if err := r.db.WithContext(ctx).Order("added_at DESC").Find(&snap.destinations).Error; err != nil {
		return nil, fmt.Errorf("list destination channels: %w", err)
	}

	r.mu.Lock()
	if r.gen == gen {
		r.cache = snap
	}
	r.mu.Unlock()
	return snap, nil
}

func (r *Registry) invalidate() {
	r.mu.Lock()
	r.gen++
	r.cache = nil
	r.mu.Unlock()
}
