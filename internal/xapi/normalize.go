package xapi

import (
	"regexp"
	"strings"

	"github.com/yungbote/roomscore-backend/internal/logger"
)

const (
	localContentIDExtension = "http://h5p.org/x-api/h5p-local-content-id"
	subContentIDExtension   = "http://h5p.org/x-api/h5p-subContentId"
)

// Category URIs look like http://h5p.org/libraries/H5P.Flashcards-1.5
var h5pTypeRe = regexp.MustCompile(`H5P\.(.+)-\d+(\.\d+)?$`)

// ParseRawEvent converts a raw telemetry record into a ParsedEvent.
// It returns nil when the record is unusable: missing user id, missing h5p
// content id, missing client timestamp, or a room id that contradicts
// expectedRoomID. Pass expectedRoomID == "" to skip the room check.
func ParseRawEvent(raw *RawEvent, expectedRoomID string, log *logger.Logger) *ParsedEvent {
	if raw == nil {
		return nil
	}
	if strings.TrimSpace(raw.UserID) == "" {
		logReject(log, "missing userId", raw)
		return nil
	}
	if expectedRoomID != "" && raw.RoomID != nil && *raw.RoomID != expectedRoomID {
		logReject(log, "room id mismatch", raw)
		return nil
	}

	var statement *Statement
	if raw.XAPI != nil && raw.XAPI.Data != nil {
		statement = raw.XAPI.Data.Statement
	}

	h5pID := extensionString(statement, localContentIDExtension)
	if h5pID == "" {
		logReject(log, "missing h5p local content id", raw)
		return nil
	}
	if raw.XAPI == nil || raw.XAPI.ClientTimestamp == nil || *raw.XAPI.ClientTimestamp == 0 {
		logReject(log, "missing client timestamp", raw)
		return nil
	}

	ev := &ParsedEvent{
		UserID:    raw.UserID,
		RoomID:    raw.RoomID,
		H5PID:     h5pID,
		Timestamp: *raw.XAPI.ClientTimestamp,
	}

	if sub := extensionString(statement, subContentIDExtension); sub != "" {
		ev.H5PSubID = &sub
	}
	ev.H5PType = deriveType(statement)
	ev.H5PName = deriveName(statement)
	ev.H5PParentID = deriveParentID(statement, h5pID, ev.H5PSubID)

	if statement != nil && statement.Verb != nil {
		if v, ok := statement.Verb.Display["en-US"]; ok && v != "" {
			ev.Verb = &v
		}
	}
	if statement != nil && statement.Result != nil {
		ev.Score = statement.Result.Score
		ev.Response = statement.Result.Response
	}
	return ev
}

func extensionString(s *Statement, key string) string {
	if s == nil || s.Object == nil || s.Object.Definition == nil {
		return ""
	}
	val, ok := s.Object.Definition.Extensions[key]
	if !ok {
		return ""
	}
	str, ok := val.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(str)
}

func deriveType(s *Statement) *string {
	if s == nil || s.Context == nil || s.Context.ContextActivities == nil {
		return nil
	}
	for _, cat := range s.Context.ContextActivities.Category {
		if m := h5pTypeRe.FindStringSubmatch(cat.ID); m != nil {
			t := m[1]
			return &t
		}
	}
	return nil
}

func deriveName(s *Statement) *string {
	if s == nil || s.Object == nil || s.Object.Definition == nil {
		return nil
	}
	if name, ok := s.Object.Definition.Name["en-US"]; ok && name != "" {
		return &name
	}
	for _, name := range s.Object.Definition.Name {
		if name != "" {
			return &name
		}
	}
	return nil
}

// deriveParentID prefers the explicit parent-context activity id, stripping
// any "...=" query prefix. A subcontent event with no parent context defaults
// its parent to the root activity it belongs to.
func deriveParentID(s *Statement, h5pID string, subID *string) *string {
	if s != nil && s.Context != nil && s.Context.ContextActivities != nil {
		for _, parent := range s.Context.ContextActivities.Parent {
			if parent.ID == "" {
				continue
			}
			id := parent.ID
			if idx := strings.LastIndex(id, "="); idx >= 0 {
				id = id[idx+1:]
			}
			if id != "" {
				return &id
			}
		}
	}
	if subID != nil {
		parent := h5pID
		return &parent
	}
	return nil
}

func logReject(log *logger.Logger, reason string, raw *RawEvent) {
	if log == nil {
		return
	}
	log.Debug("Rejecting raw xapi event", "reason", reason, "user_id", raw.UserID)
}
