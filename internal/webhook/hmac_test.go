package webhook

import (
	"strings"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	const key = "test-secret-key"
	body := []byte(`{"message_id":"m1","from":"+100","to":"+200","ts":"2024-01-01T00:00:00Z"}`)
	altered := []byte(`{"message_id":"m2","from":"+100","to":"+200","ts":"2024-01-01T00:00:00Z"}`)
	sig := Sign(key, body)

	cases := map[string]struct {
		key  string
		body []byte
		sig  string
		ok   bool
	}{
		"accepts lowercase hex digest":        {key, body, sig, true},
		"accepts sha256= prefixed digest":     {key, body, "sha256=" + sig, true},
		"rejects all-zero digest":             {key, body, strings.Repeat("0", 64), false},
		"rejects altered message_id":          {key, altered, sig, false},
		"rejects trailing newline in body":    {key, append(append([]byte{}, body...), '\n'), sig, false},
		"rejects digest under another secret": {"other-key", body, sig, false},
		"rejects uppercase digest":            {key, body, strings.ToUpper(sig), false},
		"rejects missing header value":        {key, body, "", false},
		"rejects when secret unset":           {"", body, sig, false},
		"rejects non-hex value":               {key, body, "not-valid-hex", false},
		"rejects truncated digest":            {key, body, sig[:32], false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := VerifySignature(tc.key, tc.body, tc.sig); got != tc.ok {
				t.Errorf("VerifySignature() = %v, want %v", got, tc.ok)
			}
		})
	}
}

func TestSignProducesStableLowercaseDigest(t *testing.T) {
	body := []byte(`{"message_id":"m1"}`)

	sig := Sign("k", body)
	if len(sig) != 64 {
		t.Fatalf("len(Sign()) = %d, want 64", len(sig))
	}
	if sig != strings.ToLower(sig) {
		t.Fatalf("Sign() = %s, want lowercase", sig)
	}
	if again := Sign("k", body); again != sig {
		t.Fatalf("Sign() not stable: %s != %s", again, sig)
	}
	if other := Sign("k", []byte(`{"message_id":"m2"}`)); other == sig {
		t.Fatal("distinct bodies produced the same digest")
	}
	if !VerifySignature("k", body, sig) {
		t.Fatal("VerifySignature rejected Sign output")
	}
}

func TestSignKnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := Sign("Jefe", []byte("what do ya want for nothing?"))
	want := "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"
	if got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
}
