package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/roomscore-backend/internal/logger"
	pkgerrors "github.com/yungbote/roomscore-backend/internal/pkg/errors"
	"github.com/yungbote/roomscore-backend/internal/repos"
	"github.com/yungbote/roomscore-backend/internal/stream"
	"github.com/yungbote/roomscore-backend/internal/types"
	"github.com/yungbote/roomscore-backend/internal/xapi"
)

// The placeholder row for touched-but-unanswered content carries timestamp 0
// so every re-ingestion collapses onto the same identity.
const placeholderTimestamp = 0

// StreamSink is the slice of the stream client the ingestor needs.
type StreamSink interface {
	Ack(ctx context.Context, ids ...string) error
	AddToErrorStream(ctx context.Context, payload []byte, reason string) error
}

type BatchResult struct {
	Valid       int
	Invalid     int
	RowsWritten int
}

type IngestService interface {
	ProcessBatch(ctx context.Context, msgs []stream.Message) (*BatchResult, error)
}

type ingestService struct {
	db         *gorm.DB
	log        *logger.Logger
	sink       StreamSink
	rawAnswers repos.RawAnswerRepo
	rooms      repos.RoomRepo
	scores     ScoreService
}

func NewIngestService(
	db *gorm.DB,
	baseLog *logger.Logger,
	sink StreamSink,
	rawAnswerRepo repos.RawAnswerRepo,
	roomRepo repos.RoomRepo,
	scoreService ScoreService,
) IngestService {
	return &ingestService{
		db:         db,
		log:        baseLog.With("service", "IngestService"),
		sink:       sink,
		rawAnswers: rawAnswerRepo,
		rooms:      roomRepo,
		scores:     scoreService,
	}
}

type validEvent struct {
	msg stream.Message
	ev  *xapi.ParsedEvent
}

type invalidMessage struct {
	msg    stream.Message
	reason string
}

// ProcessBatch classifies one batch of stream messages, forwards the invalid
// ones to the error stream, persists raw-answer rows for the valid ones and
// acknowledges everything it classified. Acknowledgment follows
// classification, not per-row persistence confirmation; a failed raw-answer
// insert is returned to the caller after the acks went out.
func (s *ingestService) ProcessBatch(ctx context.Context, msgs []stream.Message) (*BatchResult, error) {
	ctx, span := otel.Tracer("roomscore/services").Start(ctx, "IngestService.ProcessBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(msgs)))

	if len(msgs) == 0 {
		return &BatchResult{}, nil
	}

	valid, invalid := s.classify(msgs)

	// Invalid messages leave the source stream no matter what happens to
	// the error-stream copy.
	for _, inv := range invalid {
		if err := s.sink.AddToErrorStream(ctx, inv.msg.Payload, inv.reason); err != nil {
			s.log.Warn("Failed to forward invalid message to error stream", "entry_id", inv.msg.ID, "reason", inv.reason, "error", err)
		}
	}
	if err := s.sink.Ack(ctx, messageIDs(invalidMessages(invalid))...); err != nil {
		return nil, fmt.Errorf("ack invalid messages: %w", err)
	}
	if err := s.sink.Ack(ctx, messageIDs(validMessages(valid))...); err != nil {
		return nil, fmt.Errorf("ack valid messages: %w", err)
	}

	rows := buildRawAnswerRows(valid)
	if err := s.rawAnswers.InsertIgnoreOnConflict(ctx, nil, rows); err != nil {
		return nil, fmt.Errorf("persist raw answers: %w", err)
	}

	s.preCreateRooms(ctx, valid)

	result := &BatchResult{Valid: len(valid), Invalid: len(invalid), RowsWritten: len(rows)}
	s.log.Debug("Processed telemetry batch", "valid", result.Valid, "invalid", result.Invalid, "rows", result.RowsWritten)
	return result, nil
}

func (s *ingestService) classify(msgs []stream.Message) ([]validEvent, []invalidMessage) {
	var valid []validEvent
	var invalid []invalidMessage
	for _, msg := range msgs {
		var raw xapi.RawEvent
		if err := json.Unmarshal(msg.Payload, &raw); err != nil {
			invalid = append(invalid, invalidMessage{msg: msg, reason: pkgerrors.NewValidationError("malformed json payload").Error()})
			continue
		}
		ev := xapi.ParseRawEvent(&raw, "", s.log)
		if ev == nil {
			invalid = append(invalid, invalidMessage{msg: msg, reason: pkgerrors.NewValidationError("failed normalization").Error()})
			continue
		}
		if ev.RoomID == nil || *ev.RoomID == "" {
			invalid = append(invalid, invalidMessage{msg: msg, reason: pkgerrors.NewValidationError("missing roomId").Error()})
			continue
		}
		valid = append(valid, validEvent{msg: msg, ev: ev})
	}
	return valid, invalid
}

type contentGroup struct {
	roomID    string
	studentID string
	h5pID     string
	subID     string
}

// buildRawAnswerRows turns scored events into rows and synthesizes one
// timestamp-0 placeholder per (h5pId, subId) group that produced no scored
// event, so touched content is still recorded.
func buildRawAnswerRows(valid []validEvent) []*types.RawAnswer {
	var rows []*types.RawAnswer
	groupedScored := make(map[contentGroup]bool)
	firstInGroup := make(map[contentGroup]validEvent)
	var groupOrder []contentGroup

	for _, ve := range valid {
		group := groupOf(ve.ev)
		if _, ok := firstInGroup[group]; !ok {
			firstInGroup[group] = ve
			groupOrder = append(groupOrder, group)
		}
		if !ve.ev.HasAnswer() {
			continue
		}
		groupedScored[group] = true
		row := &types.RawAnswer{
			RoomID:    group.roomID,
			StudentID: group.studentID,
			H5PID:     group.h5pID,
			H5PSubID:  group.subID,
			Timestamp: ve.ev.Timestamp,
			Response:  ve.ev.Response,
			Payload:   datatypes.JSON(ve.msg.Payload),
		}
		if ve.ev.Score != nil {
			row.Score = ve.ev.Score.Raw
		}
		rows = append(rows, row)
	}

	for _, group := range groupOrder {
		if groupedScored[group] {
			continue
		}
		first := firstInGroup[group]
		rows = append(rows, &types.RawAnswer{
			RoomID:    group.roomID,
			StudentID: group.studentID,
			H5PID:     group.h5pID,
			H5PSubID:  group.subID,
			Timestamp: placeholderTimestamp,
			Payload:   datatypes.JSON(first.msg.Payload),
		})
	}
	return rows
}

func groupOf(ev *xapi.ParsedEvent) contentGroup {
	group := contentGroup{
		roomID:    *ev.RoomID,
		studentID: ev.UserID,
		h5pID:     ev.H5PID,
	}
	if ev.H5PSubID != nil {
		group.subID = *ev.H5PSubID
	}
	return group
}

// preCreateRooms seeds room and template rows for rooms this batch saw for
// the first time. Purely a latency optimization for the read path; every
// failure is logged and swallowed.
func (s *ingestService) preCreateRooms(ctx context.Context, valid []validEvent) {
	seen := make(map[string]struct{})
	for _, ve := range valid {
		roomID := *ve.ev.RoomID
		if _, dup := seen[roomID]; dup {
			continue
		}
		seen[roomID] = struct{}{}

		_, err := s.rooms.GetByID(ctx, nil, roomID)
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("Room lookup failed during pre-create", "room_id", roomID, "error", err)
			continue
		}
		if err := s.scores.SeedRoom(ctx, roomID); err != nil {
			s.log.Warn("Room template pre-create failed", "room_id", roomID, "error", err)
		}
	}
}

func messageIDs(msgs []stream.Message) []string {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}

func validMessages(valid []validEvent) []stream.Message {
	msgs := make([]stream.Message, 0, len(valid))
	for _, ve := range valid {
		msgs = append(msgs, ve.msg)
	}
	return msgs
}

func invalidMessages(invalid []invalidMessage) []stream.Message {
	msgs := make([]stream.Message, 0, len(invalid))
	for _, inv := range invalid {
		msgs = append(msgs, inv.msg)
	}
	return msgs
}
