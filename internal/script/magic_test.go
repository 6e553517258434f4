package script

import (
	"errors"
	"testing"
)

func TestParseMagicContext(t *testing.T) {
	m, err := ParseMagicContext("ant")
	if err != nil {
		t.Fatalf("ParseMagicContext(ant) error: %v", err)
	}
	if m != MagicAntBuilder {
		t.Errorf("got %v, want MagicAntBuilder", m)
	}

	_, err = ParseMagicContext("gradle")
	if !errors.Is(err, ErrUnsupportedMagic) {
		t.Errorf("error = %v, want ErrUnsupportedMagic", err)
	}
	if !IsConfigError(err) {
		t.Error("unknown magic context should be a configuration error")
	}
}

func TestMagicContextString(t *testing.T) {
	if MagicAntBuilder.String() != "ant" {
		t.Errorf("String() = %q", MagicAntBuilder.String())
	}
	if MagicContext(42).String() != "MagicContext(42)" {
		t.Errorf("String() = %q", MagicContext(42).String())
	}
}
