package store

import "testing"

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()

	want := Cursor{UserID: "user-123", EventType: "birthday"}
	encoded := EncodeCursor(want)

	got, err := DecodeCursor(encoded)
	if err != nil {
		t.Fatalf("DecodeCursor() error = %v", err)
	}
	if got != want {
		t.Fatalf("DecodeCursor() = %+v, want %+v", got, want)
	}
}

func TestDecodeCursorEmptyIsZeroValue(t *testing.T) {
	t.Parallel()

	got, err := DecodeCursor("")
	if err != nil {
		t.Fatalf("DecodeCursor() error = %v", err)
	}
	if got != (Cursor{}) {
		t.Fatalf("expected zero-value cursor, got %+v", got)
	}
}

func TestDecodeCursorMalformed(t *testing.T) {
	t.Parallel()

	_, err := DecodeCursor("not-valid-base64!!")
	if err == nil {
		t.Fatal("expected error decoding malformed cursor")
	}
}
