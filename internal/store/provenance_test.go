package store

import (
	"testing"
)

func TestAppendProvenance(t *testing.T) {
	db := testDB(t)

	id, err := db.AppendProvenance("obj-1", ActionIngested, "test", map[string]any{"decision": "allow"})
	if err != nil {
		t.Fatalf("AppendProvenance: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty event id")
	}

	events, err := db.QueryProvenance(ProvenanceFilter{ObjectID: "obj-1"})
	if err != nil {
		t.Fatalf("QueryProvenance: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Action != ActionIngested {
		t.Errorf("action = %q, want ingested", events[0].Action)
	}
	if events[0].Metadata["decision"] != "allow" {
		t.Errorf("metadata decision = %v, want allow", events[0].Metadata["decision"])
	}
}

func TestQueryProvenanceNewestFirst(t *testing.T) {
	db := testDB(t)

	db.AppendProvenance("obj-1", ActionIngested, "alice", nil)
	db.AppendProvenance("obj-1", ActionValidated, "bob", nil)
	db.AppendProvenance("obj-1", ActionValidated, "carol", nil)

	events, _ := db.QueryProvenance(ProvenanceFilter{ObjectID: "obj-1"})
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].Actor != "carol" {
		t.Errorf("newest first: actor = %q, want carol", events[0].Actor)
	}
	if events[2].Actor != "alice" {
		t.Errorf("oldest last: actor = %q, want alice", events[2].Actor)
	}
}

func TestQueryProvenanceFilters(t *testing.T) {
	db := testDB(t)

	db.AppendProvenance("obj-1", ActionIngested, "alice", nil)
	db.AppendProvenance("obj-1", ActionValidated, "bob", nil)
	db.AppendProvenance("obj-2", ActionDenied, "alice", nil)

	byAction, _ := db.QueryProvenance(ProvenanceFilter{Action: ActionDenied})
	if len(byAction) != 1 || byAction[0].ObjectID != "obj-2" {
		t.Errorf("action filter returned %d events", len(byAction))
	}

	byActor, _ := db.QueryProvenance(ProvenanceFilter{Actor: "alice"})
	if len(byActor) != 2 {
		t.Errorf("actor filter = %d events, want 2", len(byActor))
	}

	limited, _ := db.QueryProvenance(ProvenanceFilter{ObjectID: "obj-1", Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limit = %d events, want 1", len(limited))
	}
}

func TestQueryProvenanceTimeRange(t *testing.T) {
	db := testDB(t)

	db.AppendProvenance("obj-1", ActionIngested, "alice", nil)
	events, _ := db.QueryProvenance(ProvenanceFilter{ObjectID: "obj-1"})
	ts := events[0].Timestamp

	within, _ := db.QueryProvenance(ProvenanceFilter{Since: ts, Until: ts})
	if len(within) != 1 {
		t.Errorf("inclusive range = %d events, want 1", len(within))
	}

	after, _ := db.QueryProvenance(ProvenanceFilter{Since: "2999-01-01T00:00:00.000000Z"})
	if len(after) != 0 {
		t.Errorf("future range = %d events, want 0", len(after))
	}
}
