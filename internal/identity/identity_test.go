package identity

import (
	"context"
	"errors"
	"testing"
)

func TestStaticProvider(t *testing.T) {
	id, err := Static{UserID: "user-1"}.CurrentUserID(context.Background())
	if err != nil || id != "user-1" {
		t.Fatalf("got (%q, %v), want (user-1, nil)", id, err)
	}

	_, err = Static{}.CurrentUserID(context.Background())
	if !errors.Is(err, ErrNoUser) {
		t.Fatalf("err = %v, want ErrNoUser", err)
	}
}

func TestContextualProvider(t *testing.T) {
	var p Contextual

	_, err := p.CurrentUserID(context.Background())
	if !errors.Is(err, ErrNoUser) {
		t.Fatalf("bare context: err = %v, want ErrNoUser", err)
	}

	ctx := WithUser(context.Background(), "user-9")
	id, err := p.CurrentUserID(ctx)
	if err != nil || id != "user-9" {
		t.Fatalf("got (%q, %v), want (user-9, nil)", id, err)
	}

	_, err = p.CurrentUserID(WithUser(context.Background(), ""))
	if !errors.Is(err, ErrNoUser) {
		t.Fatalf("empty id: err = %v, want ErrNoUser", err)
	}
}

func TestUserFrom(t *testing.T) {
	if _, ok := UserFrom(context.Background()); ok {
		t.Fatal("bare context must not report a user")
	}
	id, ok := UserFrom(WithUser(context.Background(), "u"))
	if !ok || id != "u" {
		t.Fatalf("got (%q, %v)", id, ok)
	}
}
