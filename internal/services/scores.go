package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/roomscore-backend/internal/clients/attendance"
	"github.com/yungbote/roomscore-backend/internal/clients/cms"
	"github.com/yungbote/roomscore-backend/internal/clients/xapistore"
	"github.com/yungbote/roomscore-backend/internal/logger"
	"github.com/yungbote/roomscore-backend/internal/repos"
	"github.com/yungbote/roomscore-backend/internal/scoring"
	"github.com/yungbote/roomscore-backend/internal/types"
	"github.com/yungbote/roomscore-backend/internal/xapi"
)

const maxConcurrentSessionFetches = 5

type ScoreService interface {
	CalculateRoomScores(ctx context.Context, roomID, teacherID string) ([]scoring.Policy, error)
	RecalculateAndStore(ctx context.Context, roomID, teacherID string) ([]scoring.Policy, error)
	SeedRoom(ctx context.Context, roomID string) error
}

type scoreService struct {
	db         *gorm.DB
	log        *logger.Logger
	attendance attendance.Client
	cms        cms.Client
	events     xapistore.Client
	rooms      repos.RoomRepo
	scores     repos.UserContentScoreRepo
	answers    repos.AnswerRepo
	schemes    *scoring.KeySchemeCache
}

func NewScoreService(
	db *gorm.DB,
	baseLog *logger.Logger,
	attendanceClient attendance.Client,
	cmsClient cms.Client,
	eventsClient xapistore.Client,
	roomRepo repos.RoomRepo,
	scoreRepo repos.UserContentScoreRepo,
	answerRepo repos.AnswerRepo,
	schemes *scoring.KeySchemeCache,
) ScoreService {
	return &scoreService{
		db:         db,
		log:        baseLog.With("service", "ScoreService"),
		attendance: attendanceClient,
		cms:        cmsClient,
		events:     eventsClient,
		rooms:      roomRepo,
		scores:     scoreRepo,
		answers:    answerRepo,
		schemes:    schemes,
	}
}

// CalculateRoomScores runs the full pipeline for one room: attendance,
// windowed event fetch, normalization, policy routing. The returned policies
// cover every (student, content) pair in the template, seen or not, with
// answers sorted by timestamp ascending.
func (s *scoreService) CalculateRoomScores(ctx context.Context, roomID, teacherID string) ([]scoring.Policy, error) {
	ctx, span := otel.Tracer("roomscore/services").Start(ctx, "ScoreService.CalculateRoomScores")
	defer span.End()
	span.SetAttributes(attribute.String("room.id", roomID))

	att, err := s.attendance.GetRoomAttendances(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("fetch attendances: %w", err)
	}
	materials, err := s.cms.GetMaterials(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("fetch lesson materials: %w", err)
	}

	teacherIDs := map[string]struct{}{teacherID: {}}
	for _, id := range att.TeacherIDs {
		teacherIDs[id] = struct{}{}
	}

	merged := mergeAttendances(att.Sessions)
	studentSessions := make([]attendance.Session, 0, len(merged))
	for _, sess := range merged {
		if _, isTeacher := teacherIDs[sess.UserID]; isTeacher {
			continue
		}
		studentSessions = append(studentSessions, sess)
	}

	parsed, err := s.fetchAndNormalize(ctx, roomID, studentSessions, att.TimezoneOffset)
	if err != nil {
		return nil, err
	}

	scheme, err := s.schemes.Get(ctx, roomID, s.probeFor(roomID, materials))
	if err != nil {
		return nil, fmt.Errorf("classify room key scheme: %w", err)
	}

	students := distinctUsers(studentSessions)
	template := scoring.BuildTemplate(roomID, materials, students, parsed, scheme)

	// Policies are not safe for concurrent mutation; events route serially
	// in timestamp order so aggregator attempts resolve deterministically.
	for _, ev := range parsed {
		template.LookupOrCreate(ev.UserID, ev).ApplyEvent(ev)
	}

	policies := template.Policies()
	for _, policy := range policies {
		answers := policy.State().Answers
		sort.SliceStable(answers, func(i, j int) bool {
			return answers[i].Timestamp < answers[j].Timestamp
		})
	}
	s.log.Debug("Calculated room scores",
		"room_id", roomID,
		"sessions", len(merged),
		"events", len(parsed),
		"policies", len(policies))
	return policies, nil
}

// RecalculateAndStore persists the calculated state in one transaction so
// the synchronous read path can serve from rows.
func (s *scoreService) RecalculateAndStore(ctx context.Context, roomID, teacherID string) ([]scoring.Policy, error) {
	policies, err := s.CalculateRoomScores(ctx, roomID, teacherID)
	if err != nil {
		return nil, err
	}

	scoreRows := make([]*types.UserContentScore, 0, len(policies))
	var answerRows []*types.Answer
	for _, policy := range policies {
		state := policy.State()
		scoreRows = append(scoreRows, &types.UserContentScore{
			RoomID:          state.RoomID,
			StudentID:       state.StudentID,
			ContentKey:      state.ContentKey,
			Seen:            state.Seen,
			ContentType:     state.ContentType,
			ContentName:     state.ContentName,
			ContentParentID: state.ParentID,
		})
		for _, a := range state.Answers {
			answerRows = append(answerRows, &types.Answer{
				RoomID:               state.RoomID,
				StudentID:            state.StudentID,
				ContentKey:           state.ContentKey,
				Timestamp:            a.Timestamp,
				Response:             a.Response,
				Score:                a.Score,
				MinimumPossibleScore: a.MinimumPossibleScore,
				MaximumPossibleScore: a.MaximumPossibleScore,
			})
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.rooms.CreateIfNotExists(ctx, tx, roomID); err != nil {
			return err
		}
		if err := s.scores.Upsert(ctx, tx, scoreRows); err != nil {
			return err
		}
		if err := s.answers.UpsertLatest(ctx, tx, answerRows); err != nil {
			return err
		}
		return s.rooms.TouchRecalculatedAt(ctx, tx, roomID, time.Now().UTC())
	})
	if err != nil {
		return nil, fmt.Errorf("store room scores: %w", err)
	}
	return policies, nil
}

// SeedRoom pre-creates the room row and an empty score template so the first
// synchronous read does not pay the full build. Callers treat failures as
// advisory.
func (s *scoreService) SeedRoom(ctx context.Context, roomID string) error {
	if _, err := s.rooms.CreateIfNotExists(ctx, nil, roomID); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	materials, err := s.cms.GetMaterials(ctx, roomID)
	if err != nil {
		return fmt.Errorf("fetch lesson materials: %w", err)
	}
	att, err := s.attendance.GetRoomAttendances(ctx, roomID)
	if err != nil {
		return fmt.Errorf("fetch attendances: %w", err)
	}
	teacherIDs := map[string]struct{}{}
	for _, id := range att.TeacherIDs {
		teacherIDs[id] = struct{}{}
	}
	var students []attendance.Session
	for _, sess := range att.Sessions {
		if _, isTeacher := teacherIDs[sess.UserID]; !isTeacher {
			students = append(students, sess)
		}
	}

	scheme, err := s.schemes.Get(ctx, roomID, s.probeFor(roomID, materials))
	if err != nil {
		return fmt.Errorf("classify room key scheme: %w", err)
	}
	template := scoring.BuildTemplate(roomID, materials, distinctUsers(students), nil, scheme)

	rows := make([]*types.UserContentScore, 0)
	for _, policy := range template.Policies() {
		state := policy.State()
		rows = append(rows, &types.UserContentScore{
			RoomID:          state.RoomID,
			StudentID:       state.StudentID,
			ContentKey:      state.ContentKey,
			ContentType:     state.ContentType,
			ContentName:     state.ContentName,
			ContentParentID: state.ParentID,
		})
	}
	return s.scores.CreateIgnoreOnConflict(ctx, nil, rows)
}

// fetchAndNormalize pulls raw events for each session window concurrently
// (pure I/O) and normalizes serially. Invalid events are logged and skipped;
// they never abort the batch.
func (s *scoreService) fetchAndNormalize(ctx context.Context, roomID string, sessions []attendance.Session, tzOffsetSeconds int64) ([]*xapi.ParsedEvent, error) {
	offsetMillis := tzOffsetSeconds * 1000
	raws := make([][]*xapi.RawEvent, len(sessions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSessionFetches)
	for i, sess := range sessions {
		i, sess := i, sess
		g.Go(func() error {
			events, err := s.events.SearchEvents(gctx, sess.UserID, sess.JoinTimestamp+offsetMillis, sess.LeaveTimestamp+offsetMillis)
			if err != nil {
				return fmt.Errorf("search events for session %s: %w", sess.SessionID, err)
			}
			raws[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var parsed []*xapi.ParsedEvent
	for _, batch := range raws {
		for _, raw := range batch {
			ev := xapi.ParseRawEvent(raw, roomID, s.log)
			if ev == nil {
				continue
			}
			parsed = append(parsed, ev)
		}
	}
	sort.SliceStable(parsed, func(i, j int) bool {
		return parsed[i].Timestamp < parsed[j].Timestamp
	})
	return parsed, nil
}

// probeFor classifies a room by comparing its persisted content keys against
// the current lesson plan: keys matching cms content ids mean current, keys
// matching raw h5p ids mean legacy. Rooms with no rows are current.
func (s *scoreService) probeFor(roomID string, materials []*scoring.Material) scoring.ProbeFunc {
	return func(ctx context.Context) (scoring.KeyScheme, error) {
		keys, err := s.scores.GetContentKeysByRoom(ctx, nil, roomID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return scoring.SchemeCurrent, nil
			}
			return scoring.SchemeCurrent, err
		}
		if len(keys) == 0 {
			return scoring.SchemeCurrent, nil
		}
		contentIDs := make(map[string]struct{}, len(materials))
		h5pIDs := make(map[string]struct{}, len(materials))
		for _, mat := range materials {
			contentIDs[mat.ContentID] = struct{}{}
			if mat.H5PID != nil {
				h5pIDs[*mat.H5PID] = struct{}{}
			}
		}
		for _, key := range keys {
			base, _ := xapi.SplitContentKey(key)
			if _, ok := contentIDs[base]; ok {
				return scoring.SchemeCurrent, nil
			}
		}
		for _, key := range keys {
			base, _ := xapi.SplitContentKey(key)
			if _, ok := h5pIDs[base]; ok {
				return scoring.SchemeLegacy, nil
			}
		}
		return scoring.SchemeCurrent, nil
	}
}

// mergeAttendances collapses records sharing a session id into one interval:
// the first occurrence is widened to (earliest join, latest leave) and later
// duplicates are dropped after contributing their bounds.
func mergeAttendances(sessions []attendance.Session) []attendance.Session {
	byID := make(map[string]int, len(sessions))
	var out []attendance.Session
	for _, sess := range sessions {
		if idx, ok := byID[sess.SessionID]; ok {
			if sess.JoinTimestamp < out[idx].JoinTimestamp {
				out[idx].JoinTimestamp = sess.JoinTimestamp
			}
			if sess.LeaveTimestamp > out[idx].LeaveTimestamp {
				out[idx].LeaveTimestamp = sess.LeaveTimestamp
			}
			continue
		}
		byID[sess.SessionID] = len(out)
		out = append(out, sess)
	}
	return out
}

func distinctUsers(sessions []attendance.Session) []string {
	seen := make(map[string]struct{}, len(sessions))
	var users []string
	for _, sess := range sessions {
		if _, dup := seen[sess.UserID]; dup {
			continue
		}
		seen[sess.UserID] = struct{}{}
		users = append(users, sess.UserID)
	}
	sort.Strings(users)
	return users
}
