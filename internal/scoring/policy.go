package scoring

import (
	"github.com/yungbote/roomscore-backend/internal/xapi"
)

// Content type strings that select a non-default aggregation behavior.
// Unknown types fall back to the default policy.
const (
	ContentTypeScoreAggregator = "ScoreAggregator"
	ContentTypeMultipleHotspot = "MultipleHotspot"
)

const VerbAttempted = "attempted"

// Answer is one scored or answered interaction. Timestamp (epoch millis) is
// the identity within a content score; aggregator-style policies may rewrite
// the most recent answer in place, nothing is ever removed.
type Answer struct {
	Timestamp            int64    `json:"timestamp"`
	Response             *string  `json:"response,omitempty"`
	Score                *float64 `json:"score,omitempty"`
	MinimumPossibleScore *float64 `json:"minimum_possible_score,omitempty"`
	MaximumPossibleScore *float64 `json:"maximum_possible_score,omitempty"`
}

// ContentScore is the accumulated state for one (room, student, content key)
// triple. It is mutated only through a Policy.
type ContentScore struct {
	RoomID      string    `json:"room_id"`
	StudentID   string    `json:"student_id"`
	ContentKey  string    `json:"content_key"`
	Seen        bool      `json:"seen"`
	ContentType *string   `json:"content_type,omitempty"`
	ContentName *string   `json:"content_name,omitempty"`
	ParentID    *string   `json:"parent_id,omitempty"`
	Answers     []*Answer `json:"answers"`
}

// Policy is the per-content aggregation state machine. Implementations are
// not safe for concurrent use; callers serialize ApplyEvent per instance.
type Policy interface {
	ApplyEvent(ev *xapi.ParsedEvent)
	ApplyEvents(evs []*xapi.ParsedEvent)
	State() *ContentScore
}

// NewPolicy selects the aggregation behavior for a content score by its
// content type.
func NewPolicy(state *ContentScore) Policy {
	contentType := ""
	if state.ContentType != nil {
		contentType = *state.ContentType
	}
	switch contentType {
	case ContentTypeScoreAggregator:
		return &scoreAggregatorPolicy{state: state}
	case ContentTypeMultipleHotspot:
		return &multipleHotspotPolicy{state: state}
	default:
		return &defaultPolicy{state: state}
	}
}

func (s *ContentScore) appendAnswer(ev *xapi.ParsedEvent) *Answer {
	for _, a := range s.Answers {
		if a.Timestamp == ev.Timestamp {
			return nil
		}
	}
	a := &Answer{Timestamp: ev.Timestamp, Response: ev.Response}
	a.setScore(ev.Score)
	s.Answers = append(s.Answers, a)
	return a
}

func (a *Answer) setScore(sc *xapi.Score) {
	if sc == nil {
		return
	}
	a.Score = sc.Raw
	a.MinimumPossibleScore = sc.Min
	a.MaximumPossibleScore = sc.Max
}

func (s *ContentScore) latestAnswer() *Answer {
	if len(s.Answers) == 0 {
		return nil
	}
	return s.Answers[len(s.Answers)-1]
}

// defaultPolicy appends one answer per qualifying event.
type defaultPolicy struct {
	state *ContentScore
}

func (p *defaultPolicy) State() *ContentScore { return p.state }

func (p *defaultPolicy) ApplyEvent(ev *xapi.ParsedEvent) {
	if !ev.HasAnswer() {
		return
	}
	p.state.Seen = true
	p.state.appendAnswer(ev)
}

func (p *defaultPolicy) ApplyEvents(evs []*xapi.ParsedEvent) {
	for _, ev := range evs {
		p.ApplyEvent(ev)
	}
}

// scoreAggregatorPolicy handles activities that report a cumulative score
// without a discrete submit. An "attempted" verb starts a new attempt; until
// the next attempt, scored events overwrite the latest answer's score and
// response instead of appending.
type scoreAggregatorPolicy struct {
	state             *ContentScore
	attemptInProgress bool
}

func (p *scoreAggregatorPolicy) State() *ContentScore { return p.state }

func (p *scoreAggregatorPolicy) ApplyEvent(ev *xapi.ParsedEvent) {
	if ev.Verb != nil && *ev.Verb == VerbAttempted {
		p.attemptInProgress = true
		return
	}
	if !ev.HasAnswer() {
		return
	}
	p.state.Seen = true
	if p.attemptInProgress || len(p.state.Answers) == 0 {
		p.state.appendAnswer(ev)
		p.attemptInProgress = false
		return
	}
	latest := p.state.latestAnswer()
	latest.setScore(ev.Score)
	latest.Response = ev.Response
}

func (p *scoreAggregatorPolicy) ApplyEvents(evs []*xapi.ParsedEvent) {
	for _, ev := range evs {
		p.ApplyEvent(ev)
	}
}

// multipleHotspotPolicy is the same state machine as the score aggregator
// but only ever overwrites the score, never the response text.
type multipleHotspotPolicy struct {
	state             *ContentScore
	attemptInProgress bool
}

func (p *multipleHotspotPolicy) State() *ContentScore { return p.state }

func (p *multipleHotspotPolicy) ApplyEvent(ev *xapi.ParsedEvent) {
	if ev.Verb != nil && *ev.Verb == VerbAttempted {
		p.attemptInProgress = true
		return
	}
	if !ev.HasAnswer() {
		return
	}
	p.state.Seen = true
	if p.attemptInProgress || len(p.state.Answers) == 0 {
		p.state.appendAnswer(ev)
		p.attemptInProgress = false
		return
	}
	p.state.latestAnswer().setScore(ev.Score)
}

func (p *multipleHotspotPolicy) ApplyEvents(evs []*xapi.ParsedEvent) {
	for _, ev := range evs {
		p.ApplyEvent(ev)
	}
}
