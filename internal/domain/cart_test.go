package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func product(id string, price string, stock int64) Product {
	return Product{ID: id, Name: "Product " + id, Price: decimal.RequireFromString(price), Stock: stock}
}

func TestCartAdd_MergesSameLine(t *testing.T) {
	var cart Cart
	p := product("p1", "10.00", 5)

	require.NoError(t, cart.Add(p, 1, "M"))
	require.NoError(t, cart.Add(p, 2, "M"))

	require.Len(t, cart.Lines, 1)
	require.Equal(t, int64(3), cart.Lines[0].Quantity)
}

func TestCartAdd_SizesAreDistinctLines(t *testing.T) {
	var cart Cart
	p := product("p1", "10.00", 5)

	require.NoError(t, cart.Add(p, 1, "M"))
	require.NoError(t, cart.Add(p, 1, "G"))

	require.Len(t, cart.Lines, 2)
}

func TestCartAdd_RejectsNonPositiveQuantity(t *testing.T) {
	var cart Cart

	require.ErrorIs(t, cart.Add(product("p1", "1", 1), 0, ""), ErrInvalidQuantity)
	require.ErrorIs(t, cart.Add(product("p1", "1", 1), -2, ""), ErrInvalidQuantity)
	require.True(t, cart.IsEmpty())
}

func TestCartUpdateQuantity(t *testing.T) {
	var cart Cart
	require.NoError(t, cart.Add(product("p1", "10", 5), 1, "M"))

	require.True(t, cart.UpdateQuantity("p1", "M", 4))
	require.Equal(t, int64(4), cart.Lines[0].Quantity)

	require.False(t, cart.UpdateQuantity("p1", "G", 4))

	require.True(t, cart.UpdateQuantity("p1", "M", 0))
	require.True(t, cart.IsEmpty())
}

func TestCartRemoveAndClear(t *testing.T) {
	var cart Cart
	require.NoError(t, cart.Add(product("p1", "10", 5), 1, ""))
	require.NoError(t, cart.Add(product("p2", "10", 5), 1, ""))

	require.True(t, cart.Remove("p1", ""))
	require.False(t, cart.Remove("p1", ""))
	require.Len(t, cart.Lines, 1)

	cart.Clear()
	require.True(t, cart.IsEmpty())
}

func TestConsolidate_SumsSizesOfOneProduct(t *testing.T) {
	p := product("p1", "50.00", 10)
	lines := []CartLine{
		{Product: p, Quantity: 2, Size: "M"},
		{Product: p, Quantity: 3, Size: "G"},
	}

	demand := Consolidate(lines)

	require.Equal(t, ConsolidatedDemand{"p1": 5}, demand)
}

func TestConsolidate_ConservesQuantity(t *testing.T) {
	lines := []CartLine{
		{Product: product("a", "1", 9), Quantity: 2, Size: "P"},
		{Product: product("b", "1", 9), Quantity: 7},
		{Product: product("a", "1", 9), Quantity: 1, Size: "M"},
		{Product: product("c", "1", 9), Quantity: 4, Size: "G"},
		{Product: product("b", "1", 9), Quantity: 3, Size: "G"},
	}

	demand := Consolidate(lines)

	var sum int64
	for _, l := range lines {
		sum += l.Quantity
	}
	require.Equal(t, sum, demand.Sum())
	require.Equal(t, []string{"a", "b", "c"}, demand.ProductIDs())
	require.Equal(t, int64(3), demand["a"])
	require.Equal(t, int64(10), demand["b"])
}

func TestConsolidate_Empty(t *testing.T) {
	require.Empty(t, Consolidate(nil))
}

func TestTotal_ExactDecimal(t *testing.T) {
	lines := []CartLine{
		{Product: product("a", "0.10", 9), Quantity: 3},
		{Product: product("b", "19.99", 9), Quantity: 2},
	}

	require.True(t, decimal.RequireFromString("40.28").Equal(Total(lines)))
	require.True(t, Total(nil).IsZero())
}

func TestCartItemCount(t *testing.T) {
	var cart Cart
	require.NoError(t, cart.Add(product("a", "1", 9), 2, ""))
	require.NoError(t, cart.Add(product("b", "1", 9), 3, "M"))

	require.Equal(t, int64(5), cart.ItemCount())
}

func TestCanIncrement_UsesSnapshot(t *testing.T) {
	line := CartLine{Product: product("a", "1", 2), Quantity: 1}
	require.True(t, line.CanIncrement())

	line.Quantity = 2
	require.False(t, line.CanIncrement())
}

func TestHasSize(t *testing.T) {
	plain := product("a", "1", 1)
	require.True(t, plain.HasSize(""))
	require.False(t, plain.HasSize("M"))

	sized := plain
	sized.Sizes = []string{"P", "M"}
	require.True(t, sized.HasSize("M"))
	require.False(t, sized.HasSize(""))
}

func TestSplitReservation(t *testing.T) {
	demand := ConsolidatedDemand{"p1": 2, "p2": 3, "p3": 1}
	reserved := ConsolidatedDemand{"p1": 2, "p2": 1, "p4": 5}

	toReserve, toRelease := SplitReservation(demand, reserved)

	require.Equal(t, ConsolidatedDemand{"p2": 3, "p3": 1}, toReserve)
	require.Equal(t, ConsolidatedDemand{"p2": 1, "p4": 5}, toRelease)
}

func TestSplitReservation_NothingReserved(t *testing.T) {
	demand := ConsolidatedDemand{"p1": 2}

	toReserve, toRelease := SplitReservation(demand, nil)

	require.Equal(t, demand, toReserve)
	require.Empty(t, toRelease)
}
