package weft_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/weftvcs/weft"
	"github.com/weftvcs/weft/internal/change"
	"github.com/weftvcs/weft/internal/collab"
	"github.com/weftvcs/weft/internal/output"
	"github.com/weftvcs/weft/internal/pristine"
)

func openTestRepo(t *testing.T) *weft.Repository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "repo.weft")
	repo, err := weft.Open(dbPath, pristine.OpenOptions{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCreateChannelIsListed(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateChannel(ctx, "main"); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	names, err := repo.ListChannels()
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if len(names) != 1 || names[0] != "main" {
		t.Fatalf("ListChannels = %v, want [main]", names)
	}
}

func TestForkChannelAddsChannel(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateChannel(ctx, "main"); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	if err := repo.ForkChannel(ctx, "main", "dev"); err != nil {
		t.Fatalf("ForkChannel: %v", err)
	}

	names, err := repo.ListChannels()
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("ListChannels = %v, want 2 channels", names)
	}
}

func TestApplyRepairOutputWiring(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateChannel(ctx, "main"); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	// A hunk-less change still needs to intern cleanly: applying it
	// records dependencies and touched files without mutating the
	// graph, exercising the bookkeeping path every real change also
	// goes through.
	c := &change.Change{
		Header:   change.Header{Author: "test", Message: "empty change"},
		Contents: []byte("hello, weft\n"),
	}

	if _, err := repo.ApplyChange(ctx, "main", c); err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}

	// ApplyChange already repaired "main" as part of its own transaction;
	// this call only exercises that Repair stays a harmless, idempotent
	// re-run when there's nothing left to fix.
	if _, err := repo.Repair(ctx, "main"); err != nil {
		t.Fatalf("Repair: %v", err)
	}

	cs := collab.NewMemoryChangeStore()
	if _, err := cs.SaveChange(ctx, c); err != nil {
		t.Fatalf("SaveChange: %v", err)
	}
	wc := collab.NewMemoryWorkingCopy()
	if err := repo.Output(ctx, "main", cs, wc, output.Options{}); err != nil {
		t.Fatalf("Output: %v", err)
	}
}

func TestChannelMetadataAndStateAdvanceOnApply(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateChannel(ctx, "main"); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	id, err := repo.ChannelID("main")
	if err != nil {
		t.Fatalf("ChannelID: %v", err)
	}
	if id.String() == "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("ChannelID returned the zero UUID")
	}

	beforeState, beforeCounter, err := repo.ChannelState("main")
	if err != nil {
		t.Fatalf("ChannelState: %v", err)
	}
	if beforeCounter != 0 {
		t.Fatalf("ChannelState counter = %d, want 0 before any apply", beforeCounter)
	}

	first := &change.Change{Header: change.Header{Author: "test"}, Contents: []byte("x")}
	if _, err := repo.ApplyChange(ctx, "main", first); err != nil {
		t.Fatalf("ApplyChange(first): %v", err)
	}
	firstState, firstCounter, err := repo.ChannelState("main")
	if err != nil {
		t.Fatalf("ChannelState: %v", err)
	}
	if firstCounter != 0 {
		t.Fatalf("ChannelState counter = %d, want 0 after the first apply", firstCounter)
	}
	if firstState == beforeState {
		t.Fatalf("ChannelState did not advance after the first apply")
	}

	second := &change.Change{Header: change.Header{Author: "test"}, Contents: []byte("y")}
	if _, err := repo.ApplyChange(ctx, "main", second); err != nil {
		t.Fatalf("ApplyChange(second): %v", err)
	}
	secondState, secondCounter, err := repo.ChannelState("main")
	if err != nil {
		t.Fatalf("ChannelState: %v", err)
	}
	if secondCounter != 1 {
		t.Fatalf("ChannelState counter = %d, want 1 after the second apply", secondCounter)
	}
	if secondState == firstState {
		t.Fatalf("ChannelState did not advance after the second apply")
	}

	if _, err := repo.ChannelLastModified("main"); err != nil {
		t.Fatalf("ChannelLastModified: %v", err)
	}

	if err := repo.Unrecord(ctx, "main", 0); err != nil {
		t.Fatalf("Unrecord: %v", err)
	}
	rolledBack, counter, err := repo.ChannelState("main")
	if err != nil {
		t.Fatalf("ChannelState after Unrecord: %v", err)
	}
	if counter != 0 {
		t.Fatalf("ChannelState counter after Unrecord = %d, want 0", counter)
	}
	if rolledBack != firstState {
		t.Fatalf("Unrecord(0) should leave the state recorded at the cutoff in place")
	}
}
