package cart

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// UnmarshalJSON accepts unitPrice and quantity as numbers or numeric strings.
// Anything unparseable decodes as zero and is repaired by AddLine.
func (c *Candidate) UnmarshalJSON(b []byte) error {
	type plain Candidate
	var raw struct {
		plain
		UnitPrice json.RawMessage `json:"unitPrice"`
		Quantity  json.RawMessage `json:"quantity"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*c = Candidate(raw.plain)
	c.UnitPrice = lenientDecimal(raw.UnitPrice)
	c.Quantity = int(lenientDecimal(raw.Quantity).IntPart())
	return nil
}

func lenientDecimal(raw json.RawMessage) decimal.Decimal {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero
		}
		text = strings.TrimSpace(s)
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero
	}
	return d
}
