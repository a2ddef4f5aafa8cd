package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ownerID := uuid.New()
	fileID := uuid.New()
	payload := []byte("name,email\nAna,a@x.com\n")

	locator, err := store.Save(context.Background(), ownerID, fileID, "People.CSV", payload)
	if err != nil {
		t.Fatalf("save returned error: %v", err)
	}

	if filepath.Base(filepath.Dir(locator)) != ownerID.String() {
		t.Fatalf("uploads must be grouped per owner: %s", locator)
	}
	if !strings.HasSuffix(locator, fileID.String()+".csv") {
		t.Fatalf("stored name should be the file id plus lowered extension: %s", locator)
	}

	rc, err := store.Open(context.Background(), locator)
	if err != nil {
		t.Fatalf("open returned error: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read returned error: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("payload mismatch: %q", data)
	}

	if err := store.Delete(context.Background(), locator); err != nil {
		t.Fatalf("delete returned error: %v", err)
	}
	if _, err := store.Open(context.Background(), locator); err == nil {
		t.Fatal("open should fail after delete")
	}

	// Deleting twice is fine.
	if err := store.Delete(context.Background(), locator); err != nil {
		t.Fatalf("second delete returned error: %v", err)
	}
}

func TestNewDiskStoreRequiresRoot(t *testing.T) {
	if _, err := NewDiskStore("  "); err == nil {
		t.Fatal("expected error for blank root")
	}
}
