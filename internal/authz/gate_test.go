package authz

import (
	"context"
	"errors"
	"testing"
)

type fakeDirectory struct {
	users map[string]bool // digits → active
	err   error
}

func (f *fakeDirectory) FindBySender(_ context.Context, digits string) (bool, bool, error) {
	if f.err != nil {
		return false, false, f.err
	}
	active, found := f.users[digits]
	return active, found, nil
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"5511999990000@s.whatsapp.net", "5511999990000"},
		{"+55 (11) 99999-0000", "5511999990000"},
		{"5511999990000", "5511999990000"},
		{"abc@g.us", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAuthorizeOutcomes(t *testing.T) {
	dir := &fakeDirectory{users: map[string]bool{
		"5511999990000": true,
		"5511888880000": false,
	}}
	gate := NewGate(dir)
	ctx := context.Background()

	ok, denial, err := gate.Authorize(ctx, "5511999990000@s.whatsapp.net")
	if err != nil || !ok {
		t.Fatalf("active user: ok=%v denial=%q err=%v", ok, denial, err)
	}
	if denial != "" {
		t.Errorf("success path leaked denial text: %q", denial)
	}

	ok, inactiveDenial, err := gate.Authorize(ctx, "5511888880000@s.whatsapp.net")
	if err != nil || ok {
		t.Fatalf("inactive user: ok=%v err=%v", ok, err)
	}
	if inactiveDenial != DenialInactive {
		t.Errorf("inactive denial = %q", inactiveDenial)
	}

	ok, unknownDenial, err := gate.Authorize(ctx, "5511777770000@s.whatsapp.net")
	if err != nil || ok {
		t.Fatalf("unknown user: ok=%v err=%v", ok, err)
	}
	if unknownDenial != DenialUnregistered {
		t.Errorf("unregistered denial = %q", unknownDenial)
	}

	if unknownDenial == inactiveDenial {
		t.Error("unregistered and inactive denials must read differently")
	}
}

func TestAuthorizeEmptyAddress(t *testing.T) {
	gate := NewGate(&fakeDirectory{users: map[string]bool{}})

	ok, denial, err := gate.Authorize(context.Background(), "@g.us")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || denial != DenialUnregistered {
		t.Errorf("expected unregistered denial for digitless address, got ok=%v denial=%q", ok, denial)
	}
}

func TestAuthorizeDirectoryError(t *testing.T) {
	wantErr := errors.New("directory down")
	gate := NewGate(&fakeDirectory{err: wantErr})

	ok, _, err := gate.Authorize(context.Background(), "5511999990000")
	if ok {
		t.Error("expected not-ok on directory error")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped directory error, got %v", err)
	}
}
