package crypto

import "testing"

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if err := CheckPassword(hash, "secret"); err != nil {
		t.Fatalf("expected password to match")
	}
	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatalf("expected password mismatch")
	}
}

func TestPasswordHashesAreSalted(t *testing.T) {
	first, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	second, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct hashes for the same password")
	}
	if err := CheckPassword(second, "secret"); err != nil {
		t.Fatalf("expected second hash to verify")
	}
}

func TestCheckPasswordMalformedHash(t *testing.T) {
	if err := CheckPassword("not-a-bcrypt-hash", "secret"); err == nil {
		t.Fatalf("expected malformed hash to fail verification")
	}
}
