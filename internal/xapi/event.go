package xapi

// RawEvent is the telemetry envelope delivered by the live-class recorder.
// Everything below the top-level user id is optional on the wire; the
// normalizer decides what is usable.
type RawEvent struct {
	UserID   string      `json:"userId"`
	RoomID   *string     `json:"roomId,omitempty"`
	IsReview bool        `json:"isReview,omitempty"`
	XAPI     *XAPIRecord `json:"xapi,omitempty"`
}

type XAPIRecord struct {
	ClientTimestamp *int64    `json:"clientTimestamp,omitempty"`
	Data            *XAPIData `json:"data,omitempty"`
}

type XAPIData struct {
	Statement *Statement `json:"statement,omitempty"`
}

type Statement struct {
	Object  *StatementObject  `json:"object,omitempty"`
	Verb    *StatementVerb    `json:"verb,omitempty"`
	Result  *StatementResult  `json:"result,omitempty"`
	Context *StatementContext `json:"context,omitempty"`
}

type StatementObject struct {
	Definition *ActivityDefinition `json:"definition,omitempty"`
}

type ActivityDefinition struct {
	Name       map[string]string      `json:"name,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

type StatementVerb struct {
	Display map[string]string `json:"display,omitempty"`
}

type StatementResult struct {
	Score    *Score  `json:"score,omitempty"`
	Response *string `json:"response,omitempty"`
}

type Score struct {
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Raw    *float64 `json:"raw,omitempty"`
	Scaled *float64 `json:"scaled,omitempty"`
}

type StatementContext struct {
	ContextActivities *ContextActivities `json:"contextActivities,omitempty"`
}

type ContextActivities struct {
	Category []ActivityRef `json:"category,omitempty"`
	Parent   []ActivityRef `json:"parent,omitempty"`
}

type ActivityRef struct {
	ID string `json:"id"`
}

// ParsedEvent is the normalized, typed view of one raw statement. It lives
// only for the duration of the call that produced it.
type ParsedEvent struct {
	UserID      string
	RoomID      *string
	H5PID       string
	H5PSubID    *string
	H5PType     *string
	H5PName     *string
	H5PParentID *string
	Verb        *string
	Score       *Score
	Response    *string
	Timestamp   int64
}

// HasAnswer reports whether the event carries anything score-relevant: a
// result score or a textual response.
func (e *ParsedEvent) HasAnswer() bool {
	return e.Score != nil || e.Response != nil
}
