package probe_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/studyspot/internal/adapters/probe"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestProber_Transitions(t *testing.T) {
	var fail bool
	p := probe.New(pingFunc(func(ctx context.Context) error {
		if fail {
			return errors.New("down")
		}
		return nil
	}), time.Second, time.Second)

	var seen []bool
	remove := p.Subscribe(func(online bool) { seen = append(seen, online) })
	defer remove()

	if !p.Check(context.Background()) {
		t.Fatal("expected online")
	}
	if len(seen) != 0 {
		t.Fatalf("no transition expected while staying online, got %v", seen)
	}

	fail = true
	p.Check(context.Background())
	p.Check(context.Background())
	if p.Online() {
		t.Fatal("expected offline")
	}

	fail = false
	p.Check(context.Background())
	if len(seen) != 2 || seen[0] || !seen[1] {
		t.Errorf("expected [false true], got %v", seen)
	}
}
