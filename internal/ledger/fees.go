package ledger

import "math/big"

var hundred = big.NewInt(100)

// TotalPrice returns the exact amount a buyer must remit for a listing
// price: price + floor(price * feePercent / 100). The math stays in
// big.Int so wei-scale prices cannot overflow.
func TotalPrice(price *big.Int, feePercent int64) *big.Int {
	fee := new(big.Int).Mul(price, big.NewInt(feePercent))
	fee.Quo(fee, hundred)
	return fee.Add(fee, price)
}

// FeeShare returns the protocol's cut for a listing price.
func FeeShare(price *big.Int, feePercent int64) *big.Int {
	fee := new(big.Int).Mul(price, big.NewInt(feePercent))
	return fee.Quo(fee, hundred)
}
