package version

import "testing"

func TestString_LdflagsOverride(t *testing.T) {
	old := Version
	defer func() { Version = old }()

	Version = "1.2.3"
	if got := String(); got != "1.2.3" {
		t.Errorf("String() = %q, want 1.2.3", got)
	}
}

func TestString_NotEmpty(t *testing.T) {
	if String() == "" {
		t.Error("String() should never be empty")
	}
}
