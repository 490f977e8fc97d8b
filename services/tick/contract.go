package tick

import (
	"fmt"
	"time"
)

// Quarterly futures month codes: H=March, M=June, U=September, Z=December.
const MonthCodes = "HMUZ"

// ContractCode identifies one futures contract: root symbol, quarterly month
// letter and full four-digit year, e.g. {NQ, 'H', 2025} printed as NQH25.
type ContractCode struct {
	Root string
	Code byte
	Year int
}

func (c ContractCode) IsZero() bool { return c.Root == "" && c.Code == 0 && c.Year == 0 }

func (c ContractCode) String() string {
	if c.IsZero() {
		return "unresolved"
	}
	return fmt.Sprintf("%s%c%02d", c.Root, c.Code, c.Year%100)
}

// Month returns the contract's expiry month.
func (c ContractCode) Month() time.Month {
	switch c.Code {
	case 'H':
		return time.March
	case 'M':
		return time.June
	case 'U':
		return time.September
	case 'Z':
		return time.December
	}
	return 0
}

// Generation orders contracts along the quarterly cycle: one unit per
// quarter, strictly increasing with expiry. Zero for an invalid code.
func (c ContractCode) Generation() int {
	q := quarterIndex(c.Code)
	if q < 0 {
		return 0
	}
	return c.Year*4 + q
}

// Next returns the following quarterly contract (Z rolls into next year's H).
func (c ContractCode) Next() ContractCode {
	switch c.Code {
	case 'H':
		return ContractCode{c.Root, 'M', c.Year}
	case 'M':
		return ContractCode{c.Root, 'U', c.Year}
	case 'U':
		return ContractCode{c.Root, 'Z', c.Year}
	case 'Z':
		return ContractCode{c.Root, 'H', c.Year + 1}
	}
	return ContractCode{}
}

func quarterIndex(code byte) int {
	switch code {
	case 'H':
		return 0
	case 'M':
		return 1
	case 'U':
		return 2
	case 'Z':
		return 3
	}
	return -1
}

// ParseContractCode parses symbols like NQH25, ESZ2024 or the single-digit
// vendor form NQH5. Single-digit years are resolved to the decade nearest
// refYear; pass 0 to anchor at the current decade.
func ParseContractCode(s string, refYear int) (ContractCode, error) {
	// Letters prefix then digits suffix; the last letter is the month code.
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		i++
	}
	if i < 2 || i == len(s) || !isMonthCode(s[i-1]) {
		return ContractCode{}, fmt.Errorf("invalid contract code %q", s)
	}
	root, code, digits := s[:i-1], s[i-1], s[i:]
	year := 0
	for _, d := range []byte(digits) {
		if d < '0' || d > '9' {
			return ContractCode{}, fmt.Errorf("invalid contract code %q", s)
		}
		year = year*10 + int(d-'0')
	}
	switch len(digits) {
	case 4:
	case 2:
		year += 2000
	case 1:
		if refYear <= 0 {
			refYear = time.Now().UTC().Year()
		}
		year = refYear - refYear%10 + year
		// e.g. ref 2019 with digit 0 means 2020, not 2010
		if year < refYear-5 {
			year += 10
		} else if year > refYear+5 {
			year -= 10
		}
	default:
		return ContractCode{}, fmt.Errorf("invalid contract code %q", s)
	}
	return ContractCode{Root: root, Code: code, Year: year}, nil
}

func isMonthCode(b byte) bool {
	return b == 'H' || b == 'M' || b == 'U' || b == 'Z'
}
