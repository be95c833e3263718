package auth

import (
	"errors"
	"testing"
	"time"
)

func TestMintVerifyRoundtrip(t *testing.T) {
	id := Identity{UserID: "u_7", Username: "alice", Level: 3}
	token, err := Mint("secret", id, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	got, err := NewJWTVerifier("secret").Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != id {
		t.Errorf("identity = %+v, want %+v", got, id)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	token, err := Mint("secret", Identity{UserID: "u_1", Username: "alice"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewJWTVerifier("other-secret").Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	token, err := Mint("secret", Identity{UserID: "u_1", Username: "alice"}, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewJWTVerifier("secret").Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyMalformedToken(t *testing.T) {
	if _, err := NewJWTVerifier("secret").Verify("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyMissingClaims(t *testing.T) {
	// A token signed correctly but without user_id is rejected
	token, err := Mint("secret", Identity{Username: "alice"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewJWTVerifier("secret").Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestLevelDefaultsToOne(t *testing.T) {
	token, err := Mint("secret", Identity{UserID: "u_1", Username: "alice"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	got, err := NewJWTVerifier("secret").Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if got.Level != 1 {
		t.Errorf("level = %d, want default 1", got.Level)
	}
}
