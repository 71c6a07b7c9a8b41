package auth

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestEncryptedFileStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewEncryptedFileStorage(dir)
	if err != nil {
		t.Fatalf("NewEncryptedFileStorage failed: %v", err)
	}

	payload := []byte(`{"accessToken":"secret"}`)
	if err := storage.Save("default", payload); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// The on-disk file must not contain the plaintext.
	raw, err := os.ReadFile(filepath.Join(dir, "credentials", "default.enc"))
	if err != nil {
		t.Fatalf("failed to read credential file: %v", err)
	}
	if bytes.Contains(raw, []byte("secret")) {
		t.Error("encrypted file contains plaintext credentials")
	}

	loaded, err := storage.Load("default")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(loaded, payload) {
		t.Errorf("loaded = %s, want %s", loaded, payload)
	}

	if err := storage.Delete("default"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := storage.Load("default"); err == nil {
		t.Error("expected error loading deleted credentials")
	}
}

func TestEncryptedFileStorageKeyReuse(t *testing.T) {
	dir := t.TempDir()
	first, err := NewEncryptedFileStorage(dir)
	if err != nil {
		t.Fatalf("NewEncryptedFileStorage failed: %v", err)
	}
	if err := first.Save("work", []byte("data")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// A second instance must load the same keyfile and decrypt.
	second, err := NewEncryptedFileStorage(dir)
	if err != nil {
		t.Fatalf("second NewEncryptedFileStorage failed: %v", err)
	}
	loaded, err := second.Load("work")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(loaded) != "data" {
		t.Errorf("loaded = %q, want %q", loaded, "data")
	}
}

func TestEncryptedFileStorageRejectsTamperedData(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewEncryptedFileStorage(dir)
	if err != nil {
		t.Fatalf("NewEncryptedFileStorage failed: %v", err)
	}
	if err := storage.Save("default", []byte("data")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	credFile := filepath.Join(dir, "credentials", "default.enc")
	raw, err := os.ReadFile(credFile)
	if err != nil {
		t.Fatalf("failed to read credential file: %v", err)
	}
	raw[len(raw)-1] ^= 0xff
	if err := os.WriteFile(credFile, raw, 0600); err != nil {
		t.Fatalf("failed to write tampered file: %v", err)
	}

	if _, err := storage.Load("default"); err == nil {
		t.Error("expected decryption of tampered data to fail")
	}
}

func TestPlainFileStorageRoundTrip(t *testing.T) {
	storage := NewPlainFileStorage(t.TempDir())

	payload := []byte(`{"accessToken":"tok"}`)
	if err := storage.Save("default", payload); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := storage.Load("default")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(loaded, payload) {
		t.Errorf("loaded = %s, want %s", loaded, payload)
	}
}

func TestListProfilesFileBackend(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManagerWithOptions(dir, ManagerOptions{ForcePlainFile: true})

	profiles, err := mgr.ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles failed: %v", err)
	}
	if len(profiles) != 0 {
		t.Errorf("profiles = %v, want none", profiles)
	}

	for _, p := range []string{"default", "work"} {
		if err := mgr.storage.Save(p, []byte("{}")); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	profiles, err = mgr.ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles failed: %v", err)
	}
	if len(profiles) != 2 {
		t.Errorf("profiles = %v, want 2 entries", profiles)
	}
}
