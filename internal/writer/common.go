package writer

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/rickgao/kucoin-data/internal/model"
)

// decimalOrZero parses a venue decimal string, returning zero for empty or
// invalid input.
func decimalOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// levelsToJSONB converts price levels to JSONB bytes, keeping the exact
// decimal text.
func levelsToJSONB(levels []model.PriceLevel) []byte {
	result := make([]priceLevelJSON, len(levels))
	for i, l := range levels {
		result[i] = priceLevelJSON{
			Price: l.Price.String(),
			Size:  l.Size.String(),
		}
	}
	data, _ := json.Marshal(result)
	return data
}
