package cli

import "testing"

func TestStatus(t *testing.T) {
	srv := keyServer(t, "vm_validkey1234567890abc")

	tests := []struct {
		name   string
		key    string
		server string
	}{
		{"valid key", "vm_validkey1234567890abc", srv.URL},
		{"rejected key", "vm_badkey1234567890abcde", srv.URL},
		{"short key", "vm_ab", srv.URL},
		{"no key", "", srv.URL},
		{"unreachable", "vm_validkey1234567890abc", "http://127.0.0.1:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			t.Setenv("VISITS_API_KEY", tt.key)
			t.Setenv("VISITS_SERVER_URL", tt.server)

			if err := runStatus(); err != nil {
				t.Fatalf("status: %v", err)
			}
		})
	}
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key, want string
	}{
		{"", "-"},
		{"vm_ab", "vm_ab"},
		{"vm_abcdefghijkl", "vm_abcde..."},
	}
	for _, tt := range tests {
		if got := maskKey(tt.key); got != tt.want {
			t.Errorf("maskKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
