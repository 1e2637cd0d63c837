package xapi

import "testing"

func TestContentKeyRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		contentID string
		subID     *string
	}{
		{name: "no_sub", contentID: "6f2a", subID: nil},
		{name: "with_sub", contentID: "6f2a", subID: strPtr("sub-1")},
		{name: "uuid_ids", contentID: "b73c7e0a-8f4d-4a52-9d0f-1c1b92a0a1f4", subID: strPtr("f2b2a9f0-0aaa-4f7e-a9d3-111111111111")},
		{name: "sub_contains_separator", contentID: "root", subID: strPtr("a|b")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key := BuildContentKey(tc.contentID, tc.subID)
			gotID, gotSub := SplitContentKey(key)
			if gotID != tc.contentID {
				t.Fatalf("SplitContentKey(%q) contentID = %q, want %q", key, gotID, tc.contentID)
			}
			if (gotSub == nil) != (tc.subID == nil) {
				t.Fatalf("SplitContentKey(%q) subID = %v, want %v", key, gotSub, tc.subID)
			}
			if gotSub != nil && *gotSub != *tc.subID {
				t.Fatalf("SplitContentKey(%q) subID = %q, want %q", key, *gotSub, *tc.subID)
			}
		})
	}
}

func TestBuildContentKeyEmptySub(t *testing.T) {
	empty := ""
	if got := BuildContentKey("abc", &empty); got != "abc" {
		t.Fatalf("BuildContentKey with empty sub = %q, want %q", got, "abc")
	}
}

func TestSplitContentKeyFirstSeparatorOnly(t *testing.T) {
	id, sub := SplitContentKey("a|b|c")
	if id != "a" {
		t.Fatalf("contentID = %q, want %q", id, "a")
	}
	if sub == nil || *sub != "b|c" {
		t.Fatalf("subID = %v, want %q", sub, "b|c")
	}
}

func strPtr(s string) *string { return &s }
