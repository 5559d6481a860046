package tgerr

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		code int
		msg  string
		typ  string
		arg  int
	}{
		{420, "FLOOD_WAIT_30", "FLOOD_WAIT", 30},
		{303, "PHONE_MIGRATE_4", "PHONE_MIGRATE", 4},
		{400, "RANDOM_ID_EXPIRED", "RANDOM_ID_EXPIRED", 0},
		{400, "PEER_ID_INVALID", "PEER_ID_INVALID", 0},
		{400, "BAD_", "BAD_", 0},
		{500, "X_abc", "X_abc", 0},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			e := New(tt.code, tt.msg)
			if e.Type != tt.typ || e.Argument != tt.arg || e.Code != tt.code {
				t.Fatal("bad parse", e.Type, e.Argument, e.Code)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	err := fmt.Errorf("call failed: %w", New(420, "FLOOD_WAIT_7"))
	d, ok := FloodWait(err)
	if !ok || d != 7*time.Second {
		t.Fatal("flood wait not detected", d)
	}
	if _, ok = Migrate(err); ok {
		t.Fatal("not a migrate")
	}

	dc, ok := Migrate(New(303, "USER_MIGRATE_2"))
	if !ok || dc != 2 {
		t.Fatal("migrate not detected", dc)
	}

	if !IsStaleID(New(400, "RANDOM_ID_EXPIRED")) {
		t.Fatal("stale id not detected")
	}
	if IsStaleID(New(400, "PEER_ID_INVALID")) {
		t.Fatal("generic detected as stale")
	}
	if IsStaleID(errors.New("RANDOM_ID_EXPIRED")) {
		t.Fatal("plain error should not match")
	}
}

func TestErrorsIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(400, "MSG_ID_INVALID"))
	if !errors.Is(err, &Error{Type: TypeMsgIDInvalid}) {
		t.Fatal("should match by type")
	}
	if !errors.Is(err, &Error{Code: 400}) {
		t.Fatal("should match by code")
	}
	if errors.Is(err, &Error{Type: TypeFloodWait}) {
		t.Fatal("should not match")
	}
}
