package cartkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cocart-replica/internal/domain"
)

func TestItemKeyDeterministic(t *testing.T) {
	attrs := map[string]string{"attribute_size": "M", "attribute_color": "blue"}
	data := map[string]any{"gift_note": "happy birthday", "wrap": true}

	k1 := ItemKey(42, 7, attrs, data)
	// Rebuild the maps so iteration order differs.
	k2 := ItemKey(42, 7,
		map[string]string{"attribute_color": "blue", "attribute_size": "M"},
		map[string]any{"wrap": true, "gift_note": "happy birthday"},
	)

	require.Len(t, k1, 32)
	assert.Equal(t, k1, k2)
}

func TestItemKeyDistinguishesTuples(t *testing.T) {
	base := ItemKey(42, 0, nil, nil)

	assert.NotEqual(t, base, ItemKey(43, 0, nil, nil), "product id must matter")
	assert.NotEqual(t, base, ItemKey(42, 7, nil, nil), "variation id must matter")
	assert.NotEqual(t, base, ItemKey(42, 0, map[string]string{"attribute_size": "M"}, nil), "attributes must matter")
	assert.NotEqual(t, base, ItemKey(42, 0, nil, map[string]any{"note": "x"}), "item data must matter")
}

func TestItemKeyAttrCanonicalization(t *testing.T) {
	a := ItemKey(1, 0, map[string]string{"Attribute_Size": "M"}, nil)
	b := ItemKey(1, 0, map[string]string{"attribute_size ": "M"}, nil)
	assert.Equal(t, a, b, "attribute names are trimmed and lowercased")
}

func TestContentHashTracksChanges(t *testing.T) {
	items := []domain.CartItem{{ItemKey: "abc", Quantity: 2}}
	base := ContentHash(items, nil, nil)

	assert.Equal(t, base, ContentHash(items, nil, nil))

	bumped := []domain.CartItem{{ItemKey: "abc", Quantity: 3}}
	assert.NotEqual(t, base, ContentHash(bumped, nil, nil))

	assert.NotEqual(t, base, ContentHash(items, []string{"SAVE10"}, nil))
	assert.NotEqual(t, base, ContentHash(items, nil, []domain.Fee{{Name: "gift wrap", AmountCents: 300}}))
}
