package repos

import (
  "context"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/yungbote/roomscore-backend/internal/logger"
  "github.com/yungbote/roomscore-backend/internal/types"
)

type AnswerRepo interface {
  InsertIgnoreOnConflict(ctx context.Context, tx *gorm.DB, rows []*types.Answer) error
  UpsertLatest(ctx context.Context, tx *gorm.DB, rows []*types.Answer) error
  GetByRoom(ctx context.Context, tx *gorm.DB, roomID string) ([]*types.Answer, error)
  GetByRoomAndStudent(ctx context.Context, tx *gorm.DB, roomID, studentID string) ([]*types.Answer, error)
}

type answerRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewAnswerRepo(db *gorm.DB, baseLog *logger.Logger) AnswerRepo {
  repoLog := baseLog.With("repo", "AnswerRepo")
  return &answerRepo{db: db, log: repoLog}
}

func (r *answerRepo) InsertIgnoreOnConflict(ctx context.Context, tx *gorm.DB, rows []*types.Answer) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if len(rows) == 0 {
    return nil
  }

  if err := transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns:   []clause.Column{{Name: "room_id"}, {Name: "student_id"}, {Name: "content_key"}, {Name: "timestamp"}},
      DoNothing: true,
    }).
    Create(&rows).Error; err != nil {
    return err
  }
  return nil
}

// UpsertLatest rewrites score and response on conflict. Aggregator-style
// policies overwrite their most recent answer in place, so persistence has
// to follow suit.
func (r *answerRepo) UpsertLatest(ctx context.Context, tx *gorm.DB, rows []*types.Answer) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if len(rows) == 0 {
    return nil
  }

  if err := transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns: []clause.Column{{Name: "room_id"}, {Name: "student_id"}, {Name: "content_key"}, {Name: "timestamp"}},
      DoUpdates: clause.AssignmentColumns([]string{
        "response",
        "score",
        "minimum_possible_score",
        "maximum_possible_score",
        "updated_at",
      }),
    }).
    Create(&rows).Error; err != nil {
    return err
  }
  return nil
}

func (r *answerRepo) GetByRoom(ctx context.Context, tx *gorm.DB, roomID string) ([]*types.Answer, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.Answer
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

func (r *answerRepo) GetByRoomAndStudent(ctx context.Context, tx *gorm.DB, roomID, studentID string) ([]*types.Answer, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.Answer
  if roomID == "" || studentID == "" {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("room_id = ? AND student_id = ?", roomID, studentID).
    Order("timestamp ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
