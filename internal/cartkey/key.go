// Package cartkey derives the deterministic identifiers used by the cart:
// the per-line item key and the whole-cart content hash.
package cartkey

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"cocart-replica/internal/domain"
)

// ItemKey hashes the identity tuple of a cart line to a printable
// 32-char key. Identical tuples always produce the same key regardless
// of map iteration order; any difference in the tuple produces a
// distinct key.
func ItemKey(productID, variationID int64, attrs map[string]string, itemData map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%d|", productID, variationID)
	b.WriteString(canonicalAttrs(attrs))
	b.WriteByte('|')
	b.WriteString(canonicalData(itemData))
	return digest128(b.String())
}

// ContentHash covers items, applied coupons and fees. It changes iff
// any of the three change, which makes it usable as a cache validator.
func ContentHash(items []domain.CartItem, coupons []string, fees []domain.Fee) string {
	var b strings.Builder
	for i := range items {
		fmt.Fprintf(&b, "%s:%d;", items[i].ItemKey, items[i].Quantity)
	}
	b.WriteByte('|')
	for _, code := range coupons {
		b.WriteString(code)
		b.WriteByte(';')
	}
	b.WriteByte('|')
	for _, fee := range fees {
		fmt.Fprintf(&b, "%s:%d:%t;", fee.Name, fee.AmountCents, fee.Taxable)
	}
	return digest128(b.String())
}

// digest128 runs xxhash twice with different seeds and concatenates the
// halves into 32 hex chars.
func digest128(s string) string {
	lo := xxhash.Sum64String(s)
	hi := xxhash.Sum64String("cocart:" + s)
	return fmt.Sprintf("%016x%016x", hi, lo)
}

func canonicalAttrs(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s;", strings.ToLower(strings.TrimSpace(k)), attrs[k])
	}
	return b.String()
}

// canonicalData serializes arbitrary per-line data deterministically:
// keys sorted, values rendered through encoding/json (which itself
// sorts nested map keys).
func canonicalData(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		raw, err := json.Marshal(data[k])
		if err != nil {
			raw = []byte(fmt.Sprintf("%v", data[k]))
		}
		fmt.Fprintf(&b, "%s=%s;", k, raw)
	}
	return b.String()
}
