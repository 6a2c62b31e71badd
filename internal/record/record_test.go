package record

import (
	"errors"
	"testing"
)

// S1 (happy save): inserted provisional, confirmed on save-success.
func TestHappySave(t *testing.T) {
	s := NewMemStore()
	const id = "00112233445566778899aabbccddeeff"
	if err := s.Insert(id, "https://ap.example", "alice", []byte("hash")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	r, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Status != Provisional {
		t.Errorf("Status = %v, want Provisional", r.Status)
	}
	if err := s.Confirm(id); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	r, err = s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Status != Confirmed {
		t.Errorf("Status = %v, want Confirmed", r.Status)
	}
}

func TestSaveFailureRemoves(t *testing.T) {
	s := NewMemStore()
	const id = "00112233445566778899aabbccddeeff"
	if err := s.Insert(id, "https://ap.example", "alice", nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Remove(id); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Get(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Remove = %v, want ErrNotFound", err)
	}
}

func TestTokenRepudiatedInvalidates(t *testing.T) {
	s := NewMemStore()
	const id = "00112233445566778899aabbccddeeff"
	if err := s.Insert(id, "https://ap.example", "alice", nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Invalidate(id); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	r, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Status != Invalid {
		t.Errorf("Status = %v, want Invalid", r.Status)
	}
}

// S7 (renewal): composite state = newId + "," + oldId transitions both
// records atomically.
func TestRenewal(t *testing.T) {
	s := NewMemStore()
	const oldID = "00112233445566778899aabbccddeeff"
	const newID = "ffeeddccbbaa99887766554433221100"
	if err := s.Insert(oldID, "https://ap.example", "alice", nil); err != nil {
		t.Fatalf("Insert old: %v", err)
	}
	if err := s.Confirm(oldID); err != nil {
		t.Fatalf("Confirm old: %v", err)
	}
	if err := s.Insert(newID, "https://ap.example", "alice", nil); err != nil {
		t.Fatalf("Insert new: %v", err)
	}
	if err := s.Renew(newID, oldID); err != nil {
		t.Fatalf("Renew: %v", err)
	}
	newR, err := s.Get(newID)
	if err != nil {
		t.Fatalf("Get new: %v", err)
	}
	if newR.Status != Confirmed {
		t.Errorf("new Status = %v, want Confirmed", newR.Status)
	}
	oldR, err := s.Get(oldID)
	if err != nil {
		t.Fatalf("Get old: %v", err)
	}
	if oldR.Status != Invalid {
		t.Errorf("old Status = %v, want Invalid", oldR.Status)
	}
}

func TestRenewalMissingRecordFails(t *testing.T) {
	s := NewMemStore()
	const id = "00112233445566778899aabbccddeeff"
	if err := s.Insert(id, "https://ap.example", "alice", nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Renew("unknown-new-id", id); err == nil {
		t.Error("Renew with missing new id = nil, want error")
	}
}

func TestInsertDuplicateFails(t *testing.T) {
	s := NewMemStore()
	const id = "00112233445566778899aabbccddeeff"
	if err := s.Insert(id, "https://ap.example", "alice", nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(id, "https://ap.example", "alice", nil); err == nil {
		t.Error("duplicate Insert = nil, want error")
	}
}

func TestInvalidIDRejected(t *testing.T) {
	s := NewMemStore()
	if err := s.Insert("not-hex!!", "https://ap.example", "alice", nil); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Insert with bad id = %v, want ErrInvalidID", err)
	}
}

func TestUnknownIDOperationsReturnNotFound(t *testing.T) {
	s := NewMemStore()
	const id = "00112233445566778899aabbccddeeff"
	if err := s.Confirm(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Confirm unknown = %v, want ErrNotFound", err)
	}
	if err := s.Invalidate(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Invalidate unknown = %v, want ErrNotFound", err)
	}
	if err := s.Remove(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove unknown = %v, want ErrNotFound", err)
	}
}
