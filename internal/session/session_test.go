package session

import (
	"path/filepath"
	"regexp"
	"sync"
	"testing"
)

var tokenPattern = regexp.MustCompile(`^user_[0-9a-z]{9}_\d+$`)

func tempStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "session.json"))
}

func TestProviderMintsToken(t *testing.T) {
	provider := NewProvider(tempStore(t))

	token, err := provider.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if !tokenPattern.MatchString(token) {
		t.Errorf("token %q does not match user_<random>_<epoch-ms>", token)
	}
}

func TestProviderReusesStoredToken(t *testing.T) {
	store := tempStore(t)
	if err := store.Set("radiocalico_user_session", "user_abcdefghi_1700000000000"); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	token, err := NewProvider(store).Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "user_abcdefghi_1700000000000" {
		t.Errorf("token = %q, want the stored one", token)
	}
}

func TestProviderPersistsMintedToken(t *testing.T) {
	store := tempStore(t)

	first, err := NewProvider(store).Token()
	if err != nil {
		t.Fatalf("first Token: %v", err)
	}

	// A fresh provider over the same store must see the persisted token.
	second, err := NewProvider(store).Token()
	if err != nil {
		t.Fatalf("second Token: %v", err)
	}
	if first != second {
		t.Errorf("tokens differ across providers: %q vs %q", first, second)
	}
}

func TestProviderConcurrentCallersShareToken(t *testing.T) {
	provider := NewProvider(tempStore(t))

	const callers = 16
	tokens := make([]string, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := provider.Token()
			if err != nil {
				t.Errorf("Token: %v", err)
				return
			}
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if tokens[i] != tokens[0] {
			t.Fatalf("caller %d got %q, caller 0 got %q", i, tokens[i], tokens[0])
		}
	}
}

func TestFileStoreAbsentKey(t *testing.T) {
	store := tempStore(t)

	value, err := store.Get("missing")
	if err != nil {
		t.Fatalf("Get on empty store: %v", err)
	}
	if value != "" {
		t.Errorf("value = %q, want empty", value)
	}
}
