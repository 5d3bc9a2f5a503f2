package events

import (
	"math/big"
	"strconv"

	"taobridge/core/types"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func mergeMetadata(attrs map[string]string, meta types.TokenMetadata) {
	attrs["name"] = meta.Name
	attrs["symbol"] = meta.Symbol
	attrs["decimals"] = strconv.FormatUint(uint64(meta.Decimals), 10)
}
