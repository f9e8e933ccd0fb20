package logging

import "testing"

func TestIsSensitive(t *testing.T) {
	for _, key := range []string{"api_key", "API_KEY", " passphrase ", "secret", "private_key"} {
		if !IsSensitive(key) {
			t.Fatalf("%q should be masked", key)
		}
	}
	for _, key := range []string{"service", "network", "tx_id", "request_id", "error"} {
		if IsSensitive(key) {
			t.Fatalf("%q should pass through", key)
		}
	}
}

func TestLevelFromEnv(t *testing.T) {
	cases := map[string]string{
		"debug": "DEBUG", "warn": "WARN", "error": "ERROR", "": "INFO", "bogus": "INFO",
	}
	for value, want := range cases {
		t.Setenv("TRONFORGE_LOG_LEVEL", value)
		if got := levelFromEnv().String(); got != want {
			t.Fatalf("level for %q: got %s, want %s", value, got, want)
		}
	}
}
