package scoring

import (
	"sort"

	"github.com/yungbote/roomscore-backend/internal/xapi"
)

// Material is one lesson-plan item as the cms provider reports it. H5PID is
// absent for non-h5p materials, which still get a (never scoring) template
// entry so the room's plan is fully represented.
type Material struct {
	ContentID string  `json:"id"`
	H5PID     *string `json:"h5pId,omitempty"`
	Name      string  `json:"name"`
	Type      *string `json:"type,omitempty"`
}

type templateKey struct {
	studentID  string
	contentKey string
}

// Template holds one policy per (student, content key), built before any
// event is applied. Subcontent entries exist only where some observed event
// proved the subcontent exists; root materials are always present.
type Template struct {
	roomID   string
	scheme   KeyScheme
	policies map[templateKey]Policy
	baseByID map[string]string // h5p id -> scheme-resolved base content key
}

// BuildTemplate produces the full per-student score template for a room.
// studentIDs must already exclude teachers. events are all normalized events
// fetched for the room; they drive subcontent discovery and metadata but are
// not applied here.
func BuildTemplate(roomID string, materials []*Material, studentIDs []string, events []*xapi.ParsedEvent, scheme KeyScheme) *Template {
	t := &Template{
		roomID:   roomID,
		scheme:   scheme,
		policies: make(map[templateKey]Policy),
		baseByID: make(map[string]string),
	}

	for _, mat := range materials {
		base := t.resolveBase(mat)
		if mat.H5PID != nil && *mat.H5PID != "" {
			t.baseByID[*mat.H5PID] = base
		}

		rootType := mat.Type
		var rootName *string
		if mat.Name != "" {
			name := mat.Name
			rootName = &name
		}
		if mat.H5PID != nil {
			if meta := findEventMeta(events, *mat.H5PID, nil); meta != nil && meta.H5PType != nil {
				rootType = meta.H5PType
			}
		}
		for _, studentID := range studentIDs {
			t.register(&ContentScore{
				RoomID:      roomID,
				StudentID:   studentID,
				ContentKey:  base,
				ContentType: rootType,
				ContentName: rootName,
			})
		}

		if mat.H5PID == nil || *mat.H5PID == "" {
			continue
		}
		for _, subID := range discoverSubcontents(events, *mat.H5PID) {
			subID := subID
			key := xapi.BuildContentKey(base, &subID)
			meta := findEventMeta(events, *mat.H5PID, &subID)
			state := &ContentScore{
				RoomID:     roomID,
				ContentKey: key,
			}
			if meta != nil {
				state.ContentType = meta.H5PType
				state.ContentName = meta.H5PName
				state.ParentID = meta.H5PParentID
			}
			if state.ParentID == nil {
				parent := *mat.H5PID
				state.ParentID = &parent
			}
			for _, studentID := range studentIDs {
				clone := *state
				clone.StudentID = studentID
				t.register(&clone)
			}
		}
	}
	return t
}

func (t *Template) resolveBase(mat *Material) string {
	if t.scheme == SchemeLegacy && mat.H5PID != nil && *mat.H5PID != "" {
		return *mat.H5PID
	}
	return mat.ContentID
}

func (t *Template) register(state *ContentScore) Policy {
	key := templateKey{studentID: state.StudentID, contentKey: state.ContentKey}
	if existing, ok := t.policies[key]; ok {
		return existing
	}
	policy := NewPolicy(state)
	t.policies[key] = policy
	return policy
}

// LookupOrCreate resolves the policy an event routes to. A miss builds a
// policy on the fly from the event's own metadata; events must never be
// dropped because the plan or the discovery pass did not anticipate them.
func (t *Template) LookupOrCreate(studentID string, ev *xapi.ParsedEvent) Policy {
	base, ok := t.baseByID[ev.H5PID]
	if !ok {
		base = ev.H5PID
	}
	contentKey := xapi.BuildContentKey(base, ev.H5PSubID)
	if policy, found := t.policies[templateKey{studentID: studentID, contentKey: contentKey}]; found {
		return policy
	}
	return t.register(&ContentScore{
		RoomID:      t.roomID,
		StudentID:   studentID,
		ContentKey:  contentKey,
		ContentType: ev.H5PType,
		ContentName: ev.H5PName,
		ParentID:    ev.H5PParentID,
	})
}

// Policies returns every policy in deterministic (student, content key)
// order, seen or not.
func (t *Template) Policies() []Policy {
	keys := make([]templateKey, 0, len(t.policies))
	for k := range t.policies {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].studentID != keys[j].studentID {
			return keys[i].studentID < keys[j].studentID
		}
		return keys[i].contentKey < keys[j].contentKey
	})
	out := make([]Policy, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.policies[k])
	}
	return out
}

// discoverSubcontents collects subcontent ids for one root activity from the
// events observed against it: explicit subContentIds plus any parent-chain
// ids that are not the root itself.
func discoverSubcontents(events []*xapi.ParsedEvent, h5pID string) []string {
	seen := make(map[string]struct{})
	var subIDs []string
	add := func(id string) {
		if id == "" || id == h5pID {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		subIDs = append(subIDs, id)
	}
	for _, ev := range events {
		if ev.H5PID != h5pID {
			continue
		}
		if ev.H5PSubID != nil {
			add(*ev.H5PSubID)
		}
		if ev.H5PParentID != nil {
			add(*ev.H5PParentID)
		}
	}
	sort.Strings(subIDs)
	return subIDs
}

// findEventMeta returns a representative event for (h5pID, subID) to source
// display metadata from. subID nil matches root events only.
func findEventMeta(events []*xapi.ParsedEvent, h5pID string, subID *string) *xapi.ParsedEvent {
	for _, ev := range events {
		if ev.H5PID != h5pID {
			continue
		}
		if subID == nil {
			if ev.H5PSubID == nil {
				return ev
			}
			continue
		}
		if ev.H5PSubID != nil && *ev.H5PSubID == *subID {
			return ev
		}
	}
	return nil
}
