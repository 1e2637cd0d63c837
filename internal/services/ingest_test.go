package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/roomscore-backend/internal/scoring"
	"github.com/yungbote/roomscore-backend/internal/stream"
	"github.com/yungbote/roomscore-backend/internal/types"
	"github.com/yungbote/roomscore-backend/internal/xapi"
)

type errorStreamEntry struct {
	payload []byte
	reason  string
}

type fakeSink struct {
	acked          []string
	errorEntries   []errorStreamEntry
	errorStreamErr error
}

func (f *fakeSink) Ack(ctx context.Context, ids ...string) error {
	f.acked = append(f.acked, ids...)
	return nil
}

func (f *fakeSink) AddToErrorStream(ctx context.Context, payload []byte, reason string) error {
	if f.errorStreamErr != nil {
		return f.errorStreamErr
	}
	f.errorEntries = append(f.errorEntries, errorStreamEntry{payload: payload, reason: reason})
	return nil
}

type rawAnswerKey struct {
	roomID    string
	studentID string
	h5pID     string
	subID     string
	timestamp int64
}

// fakeRawAnswerRepo mimics the unique index: duplicate identities are ignored.
type fakeRawAnswerRepo struct {
	rows map[rawAnswerKey]*types.RawAnswer
}

func newFakeRawAnswerRepo() *fakeRawAnswerRepo {
	return &fakeRawAnswerRepo{rows: make(map[rawAnswerKey]*types.RawAnswer)}
}

func (f *fakeRawAnswerRepo) InsertIgnoreOnConflict(ctx context.Context, tx *gorm.DB, rows []*types.RawAnswer) error {
	for _, row := range rows {
		key := rawAnswerKey{
			roomID:    row.RoomID,
			studentID: row.StudentID,
			h5pID:     row.H5PID,
			subID:     row.H5PSubID,
			timestamp: row.Timestamp,
		}
		if _, exists := f.rows[key]; exists {
			continue
		}
		f.rows[key] = row
	}
	return nil
}

func (f *fakeRawAnswerRepo) GetByRoom(ctx context.Context, tx *gorm.DB, roomID string) ([]*types.RawAnswer, error) {
	return nil, nil
}

func (f *fakeRawAnswerRepo) GetByStudentAndWindow(ctx context.Context, tx *gorm.DB, studentID string, fromMillis, toMillis int64) ([]*types.RawAnswer, error) {
	return nil, nil
}

type fakeRoomRepo struct {
	existing map[string]bool
}

func (f *fakeRoomRepo) GetByID(ctx context.Context, tx *gorm.DB, roomID string) (*types.Room, error) {
	if f.existing[roomID] {
		return &types.Room{RoomID: roomID}, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRoomRepo) CreateIfNotExists(ctx context.Context, tx *gorm.DB, roomID string) (*types.Room, error) {
	return &types.Room{RoomID: roomID}, nil
}

func (f *fakeRoomRepo) TouchRecalculatedAt(ctx context.Context, tx *gorm.DB, roomID string, at time.Time) error {
	return nil
}

type fakeSeeder struct {
	seeded []string
	err    error
}

func (f *fakeSeeder) CalculateRoomScores(ctx context.Context, roomID, teacherID string) ([]scoring.Policy, error) {
	return nil, nil
}

func (f *fakeSeeder) RecalculateAndStore(ctx context.Context, roomID, teacherID string) ([]scoring.Policy, error) {
	return nil, nil
}

func (f *fakeSeeder) SeedRoom(ctx context.Context, roomID string) error {
	f.seeded = append(f.seeded, roomID)
	return f.err
}

func streamMessage(t *testing.T, id string, raw *xapi.RawEvent) stream.Message {
	t.Helper()
	payload, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal raw event: %v", err)
	}
	return stream.Message{ID: id, Payload: payload}
}

func newTestIngestService(t *testing.T, sink *fakeSink, rawRepo *fakeRawAnswerRepo, rooms *fakeRoomRepo, seeder *fakeSeeder) IngestService {
	t.Helper()
	return NewIngestService(nil, testLogger(t), sink, rawRepo, rooms, seeder)
}

func TestProcessBatchPersistsScoredEvents(t *testing.T) {
	sink := &fakeSink{}
	rawRepo := newFakeRawAnswerRepo()
	rooms := &fakeRoomRepo{existing: map[string]bool{"room-1": true}}
	svc := newTestIngestService(t, sink, rawRepo, rooms, &fakeSeeder{})

	msg := streamMessage(t, "1-0", rawScoredEvent("student-1", "room-1", "h5p-1", 1500,
		&xapi.Score{Raw: f64Ptr(2)}, strPtr("a"), "answered", ""))

	result, err := svc.ProcessBatch(context.Background(), []stream.Message{msg})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.Valid != 1 || result.Invalid != 0 || result.RowsWritten != 1 {
		t.Fatalf("result = %+v", result)
	}
	if len(rawRepo.rows) != 1 {
		t.Fatalf("rows persisted = %d, want 1", len(rawRepo.rows))
	}
	for _, row := range rawRepo.rows {
		if row.Timestamp != 1500 {
			t.Fatalf("row timestamp = %d, want 1500", row.Timestamp)
		}
		if row.Score == nil || *row.Score != 2 {
			t.Fatalf("row score = %v, want 2", row.Score)
		}
		if len(row.Payload) == 0 {
			t.Fatal("row payload must carry the original message")
		}
	}
	if len(sink.acked) != 1 || sink.acked[0] != "1-0" {
		t.Fatalf("acked = %v", sink.acked)
	}
}

func TestProcessBatchIdenticalEventTwiceWritesOneRow(t *testing.T) {
	sink := &fakeSink{}
	rawRepo := newFakeRawAnswerRepo()
	rooms := &fakeRoomRepo{existing: map[string]bool{"room-1": true}}
	svc := newTestIngestService(t, sink, rawRepo, rooms, &fakeSeeder{})

	raw := rawScoredEvent("student-1", "room-1", "h5p-1", 1500,
		&xapi.Score{Raw: f64Ptr(2)}, nil, "answered", "")
	batch := []stream.Message{
		streamMessage(t, "1-0", raw),
		streamMessage(t, "1-1", raw),
	}

	result, err := svc.ProcessBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.Valid != 2 {
		t.Fatalf("valid = %d, want 2 (both messages classify)", result.Valid)
	}
	if len(rawRepo.rows) != 1 {
		t.Fatalf("rows persisted = %d, want 1 after identity dedup", len(rawRepo.rows))
	}
	if len(sink.acked) != 2 {
		t.Fatalf("acked = %v, want both entry ids", sink.acked)
	}
}

func TestProcessBatchUnscoredEventGetsPlaceholderRow(t *testing.T) {
	sink := &fakeSink{}
	rawRepo := newFakeRawAnswerRepo()
	rooms := &fakeRoomRepo{existing: map[string]bool{"room-1": true}}
	svc := newTestIngestService(t, sink, rawRepo, rooms, &fakeSeeder{})

	msg := streamMessage(t, "1-0", rawScoredEvent("student-1", "room-1", "h5p-1", 1500,
		nil, nil, "attempted", ""))

	result, err := svc.ProcessBatch(context.Background(), []stream.Message{msg})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.RowsWritten != 1 {
		t.Fatalf("rows written = %d, want 1 placeholder", result.RowsWritten)
	}
	for key, row := range rawRepo.rows {
		if key.timestamp != 0 || row.Timestamp != 0 {
			t.Fatalf("placeholder timestamp = %d, want 0", row.Timestamp)
		}
		if row.Score != nil {
			t.Fatalf("placeholder score = %v, want nil", row.Score)
		}
	}
}

func TestProcessBatchPlaceholderNotWrittenWhenGroupScored(t *testing.T) {
	sink := &fakeSink{}
	rawRepo := newFakeRawAnswerRepo()
	rooms := &fakeRoomRepo{existing: map[string]bool{"room-1": true}}
	svc := newTestIngestService(t, sink, rawRepo, rooms, &fakeSeeder{})

	batch := []stream.Message{
		streamMessage(t, "1-0", rawScoredEvent("student-1", "room-1", "h5p-1", 1000,
			nil, nil, "attempted", "")),
		streamMessage(t, "1-1", rawScoredEvent("student-1", "room-1", "h5p-1", 1500,
			&xapi.Score{Raw: f64Ptr(2)}, nil, "answered", "")),
	}

	result, err := svc.ProcessBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.RowsWritten != 1 {
		t.Fatalf("rows written = %d, want only the scored row", result.RowsWritten)
	}
	for key := range rawRepo.rows {
		if key.timestamp == 0 {
			t.Fatal("scored group must not get a placeholder row")
		}
	}
}

func TestProcessBatchForwardsAndAcksInvalid(t *testing.T) {
	sink := &fakeSink{}
	rawRepo := newFakeRawAnswerRepo()
	rooms := &fakeRoomRepo{existing: map[string]bool{}}
	svc := newTestIngestService(t, sink, rawRepo, rooms, &fakeSeeder{})

	noRoom := rawScoredEvent("student-1", "room-1", "h5p-1", 1500,
		&xapi.Score{Raw: f64Ptr(2)}, nil, "answered", "")
	noRoom.RoomID = nil

	batch := []stream.Message{
		{ID: "1-0", Payload: []byte("{not json")},
		streamMessage(t, "1-1", noRoom),
		streamMessage(t, "1-2", &xapi.RawEvent{}),
	}

	result, err := svc.ProcessBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.Valid != 0 || result.Invalid != 3 {
		t.Fatalf("result = %+v", result)
	}
	if len(sink.errorEntries) != 3 {
		t.Fatalf("error stream entries = %d, want 3", len(sink.errorEntries))
	}
	if len(sink.acked) != 3 {
		t.Fatalf("acked = %v, want all three invalid ids", sink.acked)
	}
	if len(rawRepo.rows) != 0 {
		t.Fatalf("rows persisted = %d, want 0", len(rawRepo.rows))
	}
}

func TestProcessBatchAcksEvenWhenErrorStreamFails(t *testing.T) {
	sink := &fakeSink{errorStreamErr: fmt.Errorf("stream down")}
	rawRepo := newFakeRawAnswerRepo()
	rooms := &fakeRoomRepo{existing: map[string]bool{}}
	svc := newTestIngestService(t, sink, rawRepo, rooms, &fakeSeeder{})

	batch := []stream.Message{{ID: "1-0", Payload: []byte("{not json")}}

	result, err := svc.ProcessBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.Invalid != 1 {
		t.Fatalf("invalid = %d, want 1", result.Invalid)
	}
	if len(sink.acked) != 1 || sink.acked[0] != "1-0" {
		t.Fatalf("acked = %v, want the invalid entry despite the forward failure", sink.acked)
	}
}

func TestProcessBatchSeedsUnknownRooms(t *testing.T) {
	sink := &fakeSink{}
	rawRepo := newFakeRawAnswerRepo()
	rooms := &fakeRoomRepo{existing: map[string]bool{"room-known": true}}
	seeder := &fakeSeeder{}
	svc := newTestIngestService(t, sink, rawRepo, rooms, seeder)

	batch := []stream.Message{
		streamMessage(t, "1-0", rawScoredEvent("student-1", "room-known", "h5p-1", 1000,
			&xapi.Score{Raw: f64Ptr(1)}, nil, "answered", "")),
		streamMessage(t, "1-1", rawScoredEvent("student-1", "room-new", "h5p-1", 2000,
			&xapi.Score{Raw: f64Ptr(1)}, nil, "answered", "")),
		streamMessage(t, "1-2", rawScoredEvent("student-2", "room-new", "h5p-1", 3000,
			&xapi.Score{Raw: f64Ptr(1)}, nil, "answered", "")),
	}

	if _, err := svc.ProcessBatch(context.Background(), batch); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if len(seeder.seeded) != 1 || seeder.seeded[0] != "room-new" {
		t.Fatalf("seeded = %v, want [room-new] exactly once", seeder.seeded)
	}
}

func TestProcessBatchSeedFailureIsSwallowed(t *testing.T) {
	sink := &fakeSink{}
	rawRepo := newFakeRawAnswerRepo()
	rooms := &fakeRoomRepo{existing: map[string]bool{}}
	seeder := &fakeSeeder{err: errors.New("attendance provider down")}
	svc := newTestIngestService(t, sink, rawRepo, rooms, seeder)

	batch := []stream.Message{
		streamMessage(t, "1-0", rawScoredEvent("student-1", "room-1", "h5p-1", 1000,
			&xapi.Score{Raw: f64Ptr(1)}, nil, "answered", "")),
	}

	result, err := svc.ProcessBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("ProcessBatch must not surface seed failures: %v", err)
	}
	if result.Valid != 1 || result.RowsWritten != 1 {
		t.Fatalf("result = %+v", result)
	}
}
