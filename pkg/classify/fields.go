package classify

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
)

// fields is a leniently decoded contract parameter value.
// Each accessor reports (value, ok); a present but unparseable field is
// recorded as degraded instead of failing the whole record.
type fields struct {
	raw      map[string]json.RawMessage
	degraded []string
}

func parseFields(value json.RawMessage) (*fields, bool) {
	f := &fields{}
	if len(value) == 0 {
		return f, false
	}
	if err := json.Unmarshal(value, &f.raw); err != nil {
		return f, false
	}
	return f, true
}

func (f *fields) has(key string) bool {
	v, ok := f.raw[key]
	return ok && string(v) != "null"
}

func (f *fields) degrade(key string) {
	f.degraded = append(f.degraded, key)
}

func (f *fields) str(key string) (string, bool) {
	if !f.has(key) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(f.raw[key], &s); err != nil {
		f.degrade(key)
		return "", false
	}
	return s, true
}

// num accepts JSON numbers and numeric strings
func (f *fields) num(key string) (int64, bool) {
	if !f.has(key) {
		return 0, false
	}
	raw := strings.Trim(string(f.raw[key]), `"`)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		f.degrade(key)
		return 0, false
	}
	return n, true
}

func (f *fields) amount(key string) (*big.Int, bool) {
	n, ok := f.num(key)
	if !ok {
		return nil, false
	}
	if n < 0 {
		f.degrade(key)
		return nil, false
	}
	return big.NewInt(n), true
}

func (f *fields) flag(key string) (bool, bool) {
	if !f.has(key) {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(f.raw[key], &b); err != nil {
		f.degrade(key)
		return false, false
	}
	return b, true
}

// address resolves an address field to base58
func (f *fields) address(key string) (string, bool) {
	s, ok := f.str(key)
	if !ok {
		return "", false
	}
	addr, ok := ResolveAddress(s)
	if !ok {
		f.degrade(key)
		return "", false
	}
	return addr, true
}

// text returns a string or number field as text
func (f *fields) text(key string) (string, bool) {
	if !f.has(key) {
		return "", false
	}
	raw := f.raw[key]
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	f.degrade(key)
	return "", false
}

// votes sums vote_count over a VoteWitnessContract votes list
func (f *fields) votes(key string) (*big.Int, bool) {
	if !f.has(key) {
		return nil, false
	}
	var entries []struct {
		VoteAddress string `json:"vote_address"`
		VoteCount   int64  `json:"vote_count"`
	}
	if err := json.Unmarshal(f.raw[key], &entries); err != nil {
		f.degrade(key)
		return nil, false
	}
	total := new(big.Int)
	for _, e := range entries {
		if e.VoteCount > 0 {
			total.Add(total, big.NewInt(e.VoteCount))
		}
	}
	return total, true
}
