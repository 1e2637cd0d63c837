package xapi

import "strings"

const contentKeySeparator = "|"

// BuildContentKey returns the canonical identity for a content item:
// the content id alone, or "contentId|subcontentId" when a subcontent id is
// present.
func BuildContentKey(contentID string, subcontentID *string) string {
	if subcontentID == nil || *subcontentID == "" {
		return contentID
	}
	return contentID + contentKeySeparator + *subcontentID
}

// SplitContentKey is the inverse of BuildContentKey for well-formed keys.
// It splits on the first separator only; any further "|" characters stay in
// the subcontent part, so keys whose content id itself contains "|" do not
// round-trip.
func SplitContentKey(key string) (contentID string, subcontentID *string) {
	idx := strings.Index(key, contentKeySeparator)
	if idx < 0 {
		return key, nil
	}
	sub := key[idx+1:]
	return key[:idx], &sub
}
