package repos

import (
  "context"
  "time"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/yungbote/roomscore-backend/internal/logger"
  "github.com/yungbote/roomscore-backend/internal/types"
)

type RoomRepo interface {
  GetByID(ctx context.Context, tx *gorm.DB, roomID string) (*types.Room, error)
  CreateIfNotExists(ctx context.Context, tx *gorm.DB, roomID string) (*types.Room, error)
  TouchRecalculatedAt(ctx context.Context, tx *gorm.DB, roomID string, at time.Time) error
}

type roomRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewRoomRepo(db *gorm.DB, baseLog *logger.Logger) RoomRepo {
  repoLog := baseLog.With("repo", "RoomRepo")
  return &roomRepo{db: db, log: repoLog}
}

func (r *roomRepo) GetByID(ctx context.Context, tx *gorm.DB, roomID string) (*types.Room, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var result types.Room
  if err := transaction.WithContext(ctx).
    Where("room_id = ?", roomID).
    First(&result).Error; err != nil {
    return nil, err
  }
  return &result, nil
}

func (r *roomRepo) CreateIfNotExists(ctx context.Context, tx *gorm.DB, roomID string) (*types.Room, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  room := &types.Room{RoomID: roomID}
  if err := transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns:   []clause.Column{{Name: "room_id"}},
      DoNothing: true,
    }).
    Create(room).Error; err != nil {
    return nil, err
  }
  return room, nil
}

func (r *roomRepo) TouchRecalculatedAt(ctx context.Context, tx *gorm.DB, roomID string, at time.Time) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if err := transaction.WithContext(ctx).
    Model(&types.Room{}).
    Where("room_id = ?", roomID).
    Update("recalculated_at", at).Error; err != nil {
    return err
  }
  return nil
}
