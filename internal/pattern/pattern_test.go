package pattern

import (
	"errors"
	"sync"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"", false},
		{"firefox|chromium", false},
		{"^Code$", false},
		{"(unclosed", true},
		{"[a-", true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.expr, func(t *testing.T) {
			err := Validate(tc.expr)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidPattern) {
					t.Errorf("expected ErrInvalidPattern, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestMatchCaseModes(t *testing.T) {
	c := NewCache()

	ok, err := c.Match("cat1", "title", "YouTube", false, "youtube - music")
	if err != nil || !ok {
		t.Errorf("case-insensitive match failed: ok=%v err=%v", ok, err)
	}

	ok, err = c.Match("cat1", "title", "YouTube", true, "youtube - music")
	if err != nil || ok {
		t.Errorf("case-sensitive should not match: ok=%v err=%v", ok, err)
	}

	// Search, not full match.
	ok, _ = c.Match("cat2", "app", "term", true, "gnome-terminal-server")
	if !ok {
		t.Error("expected substring search to match")
	}
}

func TestMatchInvalidIsStable(t *testing.T) {
	c := NewCache()
	for i := 0; i < 3; i++ {
		ok, err := c.Match("bad", "app", "(", false, "anything")
		if ok {
			t.Fatal("invalid pattern must not match")
		}
		if !errors.Is(err, ErrInvalidPattern) {
			t.Fatalf("expected ErrInvalidPattern, got %v", err)
		}
	}
}

func TestCacheReplacesChangedExpression(t *testing.T) {
	c := NewCache()
	c.Match("r1", "app", "slack", false, "slack")
	c.Match("r1", "app", "discord", false, "discord")
	c.Match("r1", "title", "x", false, "x")

	if c.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.Len())
	}

	ok, _ := c.Match("r1", "app", "discord", false, "slack")
	if ok {
		t.Error("stale expression still in use")
	}

	c.Forget("r1")
	if c.Len() != 0 {
		t.Errorf("expected empty cache after Forget, got %d", c.Len())
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if ok, err := c.Match("", "app", "fire(fox)?", false, "Firefox"); err != nil || !ok {
					t.Errorf("match failed: %v %v", ok, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
