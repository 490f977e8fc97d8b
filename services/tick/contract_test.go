package tick

import (
	"testing"
	"time"
)

func TestParseContractCode(t *testing.T) {
	cases := []struct {
		in   string
		ref  int
		want ContractCode
	}{
		{"NQH25", 0, ContractCode{"NQ", 'H', 2025}},
		{"ESZ2024", 0, ContractCode{"ES", 'Z', 2024}},
		{"NQH5", 2020, ContractCode{"NQ", 'H', 2025}},
		{"NQM0", 2019, ContractCode{"NQ", 'M', 2020}},
		{"ZCU25", 0, ContractCode{"ZC", 'U', 2025}},
	}
	for _, c := range cases {
		got, err := ParseContractCode(c.in, c.ref)
		if err != nil {
			t.Fatalf("ParseContractCode(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseContractCode(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestParseContractCodeInvalid(t *testing.T) {
	for _, in := range []string{"", "NQ", "H25", "NQX25", "NQH", "NQH123", "NQH2a5"} {
		if _, err := ParseContractCode(in, 0); err == nil {
			t.Fatalf("ParseContractCode(%q): expected error", in)
		}
	}
}

func TestContractCodeString(t *testing.T) {
	c := ContractCode{"NQ", 'H', 2025}
	if c.String() != "NQH25" {
		t.Fatalf("String() = %q", c.String())
	}
	if (ContractCode{}).String() != "unresolved" {
		t.Fatal("zero code should print unresolved")
	}
}

func TestGenerationOrdering(t *testing.T) {
	seq := []ContractCode{
		{"NQ", 'Z', 2024},
		{"NQ", 'H', 2025},
		{"NQ", 'M', 2025},
		{"NQ", 'U', 2025},
		{"NQ", 'Z', 2025},
	}
	for i := 1; i < len(seq); i++ {
		if seq[i].Generation() != seq[i-1].Generation()+1 {
			t.Fatalf("generation gap between %s and %s", seq[i-1], seq[i])
		}
	}
}

func TestNextWrapsYear(t *testing.T) {
	next := ContractCode{"NQ", 'Z', 2024}.Next()
	if next != (ContractCode{"NQ", 'H', 2025}) {
		t.Fatalf("Next() = %+v", next)
	}
}

func TestContractMonth(t *testing.T) {
	if (ContractCode{"NQ", 'U', 2025}).Month() != time.September {
		t.Fatal("U should be September")
	}
}
