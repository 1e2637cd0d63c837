package scoring

import (
	"testing"

	"github.com/yungbote/roomscore-backend/internal/xapi"
)

func strPtr(s string) *string    { return &s }
func f64Ptr(v float64) *float64 { return &v }

func scoredEvent(ts int64, raw float64) *xapi.ParsedEvent {
	return &xapi.ParsedEvent{
		UserID:    "student-1",
		H5PID:     "h5p-1",
		Timestamp: ts,
		Score:     &xapi.Score{Raw: f64Ptr(raw), Min: f64Ptr(0), Max: f64Ptr(10)},
	}
}

func responseEvent(ts int64, response string) *xapi.ParsedEvent {
	return &xapi.ParsedEvent{
		UserID:    "student-1",
		H5PID:     "h5p-1",
		Timestamp: ts,
		Response:  strPtr(response),
	}
}

func attemptedEvent(ts int64) *xapi.ParsedEvent {
	return &xapi.ParsedEvent{
		UserID:    "student-1",
		H5PID:     "h5p-1",
		Timestamp: ts,
		Verb:      strPtr(VerbAttempted),
	}
}

func newState(contentType string) *ContentScore {
	state := &ContentScore{
		RoomID:     "room-1",
		StudentID:  "student-1",
		ContentKey: "content-1",
	}
	if contentType != "" {
		state.ContentType = &contentType
	}
	return state
}

func TestNewPolicySelection(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		want        string
	}{
		{name: "aggregator", contentType: ContentTypeScoreAggregator, want: "*scoring.scoreAggregatorPolicy"},
		{name: "hotspot", contentType: ContentTypeMultipleHotspot, want: "*scoring.multipleHotspotPolicy"},
		{name: "unknown_defaults", contentType: "Flashcards", want: "*scoring.defaultPolicy"},
		{name: "empty_defaults", contentType: "", want: "*scoring.defaultPolicy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy := NewPolicy(newState(tc.contentType))
			switch tc.want {
			case "*scoring.scoreAggregatorPolicy":
				if _, ok := policy.(*scoreAggregatorPolicy); !ok {
					t.Fatalf("NewPolicy(%q) = %T", tc.contentType, policy)
				}
			case "*scoring.multipleHotspotPolicy":
				if _, ok := policy.(*multipleHotspotPolicy); !ok {
					t.Fatalf("NewPolicy(%q) = %T", tc.contentType, policy)
				}
			default:
				if _, ok := policy.(*defaultPolicy); !ok {
					t.Fatalf("NewPolicy(%q) = %T", tc.contentType, policy)
				}
			}
		})
	}
}

func TestDefaultPolicyAppendsPerQualifyingEvent(t *testing.T) {
	policy := NewPolicy(newState(""))
	policy.ApplyEvents([]*xapi.ParsedEvent{
		scoredEvent(100, 1),
		responseEvent(200, "answer text"),
		attemptedEvent(300),
		{UserID: "student-1", H5PID: "h5p-1", Timestamp: 400}, // neither score nor response
	})
	state := policy.State()
	if !state.Seen {
		t.Fatal("Seen = false after qualifying events")
	}
	if len(state.Answers) != 2 {
		t.Fatalf("len(Answers) = %d, want 2", len(state.Answers))
	}
	if *state.Answers[0].Score != 1 {
		t.Fatalf("first answer score = %v", *state.Answers[0].Score)
	}
	if state.Answers[1].Response == nil || *state.Answers[1].Response != "answer text" {
		t.Fatalf("second answer response = %v", state.Answers[1].Response)
	}
}

func TestDefaultPolicyRejectsDuplicateTimestamp(t *testing.T) {
	policy := NewPolicy(newState(""))
	policy.ApplyEvent(scoredEvent(100, 1))
	policy.ApplyEvent(scoredEvent(100, 2))
	state := policy.State()
	if len(state.Answers) != 1 {
		t.Fatalf("len(Answers) = %d, want 1", len(state.Answers))
	}
	if *state.Answers[0].Score != 1 {
		t.Fatalf("score = %v, want the first delivery kept", *state.Answers[0].Score)
	}
}

func TestScoreAggregatorSingleAttempt(t *testing.T) {
	policy := NewPolicy(newState(ContentTypeScoreAggregator))
	policy.ApplyEvents([]*xapi.ParsedEvent{
		attemptedEvent(50),
		scoredEvent(100, 1),
		scoredEvent(200, 2),
	})
	state := policy.State()
	if len(state.Answers) != 1 {
		t.Fatalf("len(Answers) = %d, want 1", len(state.Answers))
	}
	if *state.Answers[0].Score != 2 {
		t.Fatalf("score = %v, want 2", *state.Answers[0].Score)
	}
	if !state.Seen {
		t.Fatal("Seen = false")
	}
}

func TestScoreAggregatorAttemptBoundary(t *testing.T) {
	policy := NewPolicy(newState(ContentTypeScoreAggregator))
	policy.ApplyEvents([]*xapi.ParsedEvent{
		scoredEvent(100, 1),
		attemptedEvent(150),
		scoredEvent(200, 2),
	})
	state := policy.State()
	if len(state.Answers) != 2 {
		t.Fatalf("len(Answers) = %d, want 2", len(state.Answers))
	}
	if *state.Answers[0].Score != 1 || *state.Answers[1].Score != 2 {
		t.Fatalf("scores = [%v, %v], want [1, 2]", *state.Answers[0].Score, *state.Answers[1].Score)
	}
}

func TestScoreAggregatorReplacesInProgressAttempt(t *testing.T) {
	policy := NewPolicy(newState(ContentTypeScoreAggregator))
	// an attempt already produced an answer
	policy.ApplyEvents([]*xapi.ParsedEvent{
		attemptedEvent(50),
		scoredEvent(100, 3),
	})
	// the same attempt continues: replaced, not appended
	policy.ApplyEvent(scoredEvent(200, 0))
	state := policy.State()
	if len(state.Answers) != 1 {
		t.Fatalf("len(Answers) = %d, want 1", len(state.Answers))
	}
	if *state.Answers[0].Score != 0 {
		t.Fatalf("score = %v, want 0", *state.Answers[0].Score)
	}
	if state.Answers[0].Timestamp != 100 {
		t.Fatalf("timestamp = %d, want the original answer rewritten in place", state.Answers[0].Timestamp)
	}
}

func TestScoreAggregatorOverwritesResponse(t *testing.T) {
	policy := NewPolicy(newState(ContentTypeScoreAggregator))
	first := scoredEvent(100, 1)
	first.Response = strPtr("first")
	policy.ApplyEvent(first)

	second := scoredEvent(200, 2)
	second.Response = strPtr("second")
	policy.ApplyEvent(second)

	state := policy.State()
	if len(state.Answers) != 1 {
		t.Fatalf("len(Answers) = %d, want 1", len(state.Answers))
	}
	if state.Answers[0].Response == nil || *state.Answers[0].Response != "second" {
		t.Fatalf("response = %v, want second", state.Answers[0].Response)
	}
}

func TestMultipleHotspotNeverMutatesResponse(t *testing.T) {
	policy := NewPolicy(newState(ContentTypeMultipleHotspot))
	first := scoredEvent(100, 1)
	first.Response = strPtr("kept")
	policy.ApplyEvent(first)

	second := scoredEvent(200, 5)
	second.Response = strPtr("ignored")
	policy.ApplyEvent(second)

	state := policy.State()
	if len(state.Answers) != 1 {
		t.Fatalf("len(Answers) = %d, want 1", len(state.Answers))
	}
	if *state.Answers[0].Score != 5 {
		t.Fatalf("score = %v, want 5", *state.Answers[0].Score)
	}
	if state.Answers[0].Response == nil || *state.Answers[0].Response != "kept" {
		t.Fatalf("response = %v, want kept", state.Answers[0].Response)
	}
}

func TestSeenNotSetByAttemptedAlone(t *testing.T) {
	policy := NewPolicy(newState(ContentTypeScoreAggregator))
	policy.ApplyEvent(attemptedEvent(100))
	if policy.State().Seen {
		t.Fatal("Seen = true after attempted alone")
	}
	if len(policy.State().Answers) != 0 {
		t.Fatalf("attempted must not create answers, got %d", len(policy.State().Answers))
	}
}
