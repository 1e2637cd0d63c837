package repos

import (
  "context"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/yungbote/roomscore-backend/internal/logger"
  "github.com/yungbote/roomscore-backend/internal/types"
)

type RawAnswerRepo interface {
  InsertIgnoreOnConflict(ctx context.Context, tx *gorm.DB, rows []*types.RawAnswer) error
  GetByRoom(ctx context.Context, tx *gorm.DB, roomID string) ([]*types.RawAnswer, error)
  GetByStudentAndWindow(ctx context.Context, tx *gorm.DB, studentID string, fromMillis, toMillis int64) ([]*types.RawAnswer, error)
}

type rawAnswerRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewRawAnswerRepo(db *gorm.DB, baseLog *logger.Logger) RawAnswerRepo {
  repoLog := baseLog.With("repo", "RawAnswerRepo")
  return &rawAnswerRepo{db: db, log: repoLog}
}

// InsertIgnoreOnConflict appends rows, letting the identity index swallow
// re-delivered statements. It never overwrites an existing row.
func (r *rawAnswerRepo) InsertIgnoreOnConflict(ctx context.Context, tx *gorm.DB, rows []*types.RawAnswer) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if len(rows) == 0 {
    return nil
  }

  if err := transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns:   []clause.Column{{Name: "room_id"}, {Name: "student_id"}, {Name: "h5p_id"}, {Name: "h5p_sub_id"}, {Name: "timestamp"}},
      DoNothing: true,
    }).
    Create(&rows).Error; err != nil {
    return err
  }
  return nil
}

func (r *rawAnswerRepo) GetByRoom(ctx context.Context, tx *gorm.DB, roomID string) ([]*types.RawAnswer, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.RawAnswer
  if roomID == "" {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("room_id = ?", roomID).
    Order("timestamp ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *rawAnswerRepo) GetByStudentAndWindow(ctx context.Context, tx *gorm.DB, studentID string, fromMillis, toMillis int64) ([]*types.RawAnswer, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.RawAnswer
  if studentID == "" {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("student_id = ? AND timestamp >= ? AND timestamp <= ?", studentID, fromMillis, toMillis).
    Order("timestamp ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
