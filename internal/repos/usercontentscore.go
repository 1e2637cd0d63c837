package repos

import (
  "context"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/yungbote/roomscore-backend/internal/logger"
  "github.com/yungbote/roomscore-backend/internal/types"
)

type UserContentScoreRepo interface {
  Upsert(ctx context.Context, tx *gorm.DB, rows []*types.UserContentScore) error
  CreateIgnoreOnConflict(ctx context.Context, tx *gorm.DB, rows []*types.UserContentScore) error
  GetByRoom(ctx context.Context, tx *gorm.DB, roomID string) ([]*types.UserContentScore, error)
  GetContentKeysByRoom(ctx context.Context, tx *gorm.DB, roomID string) ([]string, error)
}

type userContentScoreRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewUserContentScoreRepo(db *gorm.DB, baseLog *logger.Logger) UserContentScoreRepo {
  repoLog := baseLog.With("repo", "UserContentScoreRepo")
  return &userContentScoreRepo{db: db, log: repoLog}
}

func (r *userContentScoreRepo) Upsert(ctx context.Context, tx *gorm.DB, rows []*types.UserContentScore) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if len(rows) == 0 {
    return nil
  }

  if err := transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns: []clause.Column{{Name: "room_id"}, {Name: "student_id"}, {Name: "content_key"}},
      DoUpdates: clause.AssignmentColumns([]string{
        "seen",
        "content_type",
        "content_name",
        "content_parent_id",
        "updated_at",
      }),
    }).
    Create(&rows).Error; err != nil {
    return err
  }
  return nil
}

func (r *userContentScoreRepo) CreateIgnoreOnConflict(ctx context.Context, tx *gorm.DB, rows []*types.UserContentScore) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if len(rows) == 0 {
    return nil
  }

  if err := transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns:   []clause.Column{{Name: "room_id"}, {Name: "student_id"}, {Name: "content_key"}},
      DoNothing: true,
    }).
    Create(&rows).Error; err != nil {
    return err
  }
  return nil
}

func (r *userContentScoreRepo) GetByRoom(ctx context.Context, tx *gorm.DB, roomID string) ([]*types.UserContentScore, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.UserContentScore
  if roomID == "" {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("room_id = ?", roomID).
    Order("student_id ASC, content_key ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *userContentScoreRepo) GetContentKeysByRoom(ctx context.Context, tx *gorm.DB, roomID string) ([]string, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var keys []string
  if roomID == "" {
    return keys, nil
  }

  if err := transaction.WithContext(ctx).
    Model(&types.UserContentScore{}).
    Distinct("content_key").
    Where("room_id = ?", roomID).
    Pluck("content_key", &keys).Error; err != nil {
    return nil, err
  }
  return keys, nil
}
