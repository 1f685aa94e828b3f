package openpayments

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultAssetScale is the scale used when none is given.
const DefaultAssetScale = 2

// MaxAssetScale is the largest asset scale a wallet may declare.
const MaxAssetScale = 255

// InterledgerAmount is an amount in an asset's smallest unit.
// Value holds the decimal amount multiplied by 10^AssetScale as an unsigned integer string.
type InterledgerAmount struct {
	AssetCode  string `json:"assetCode"`
	AssetScale int    `json:"assetScale"`
	Value      string `json:"value"`
}

// BuildAmount converts amount to an InterledgerAmount with the default scale.
func BuildAmount(amount *decimal.Decimal, assetCode string) (InterledgerAmount, error) {
	return BuildScaledAmount(amount, assetCode, DefaultAssetScale)
}

// BuildScaledAmount converts amount to an InterledgerAmount at the given scale.
//
// The amount is always rounded half-up to 2 fractional digits first and only
// then scaled, so assets with a scale above 2 still carry cent precision.
func BuildScaledAmount(amount *decimal.Decimal, assetCode string, scale int) (InterledgerAmount, error) {
	if amount == nil {
		return InterledgerAmount{}, fmt.Errorf("%w: amount cannot be nil", ErrInvalidAmount)
	}
	if amount.IsNegative() {
		return InterledgerAmount{}, fmt.Errorf("%w: amount cannot be negative, but was: %s", ErrInvalidAmount, amount.String())
	}
	if err := checkAssetCode(assetCode); err != nil {
		return InterledgerAmount{}, err
	}
	if scale < 0 || scale > MaxAssetScale {
		return InterledgerAmount{}, fmt.Errorf("%w: assetScale must be between 0 and %d, but was: %d", ErrInvalidAssetScale, MaxAssetScale, scale)
	}

	cents := amount.Round(2)
	units := cents.Shift(int32(scale)).RoundBank(0)

	return InterledgerAmount{
		AssetCode:  assetCode,
		AssetScale: scale,
		Value:      units.StringFixed(0),
	}, nil
}

// Decimal reconstructs the decimal amount by dividing Value by 10^AssetScale.
func (a InterledgerAmount) Decimal() (decimal.Decimal, error) {
	v, err := decimal.NewFromString(a.Value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: value %q is not an integer: %v", ErrInvalidAmount, a.Value, err)
	}
	if !v.IsInteger() || v.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: value %q is not a non-negative integer", ErrInvalidAmount, a.Value)
	}
	return v.Shift(-int32(a.AssetScale)), nil
}

// String renders the amount as "<decimal> <asset code>".
func (a InterledgerAmount) String() string {
	d, err := a.Decimal()
	if err != nil {
		return a.Value + " " + a.AssetCode
	}
	return d.StringFixed(int32(a.AssetScale)) + " " + a.AssetCode
}

func checkAssetCode(assetCode string) error {
	if strings.TrimSpace(assetCode) == "" {
		return fmt.Errorf("%w: assetCode cannot be empty", ErrInvalidAssetCode)
	}
	if len(assetCode) != 3 {
		return fmt.Errorf("%w: assetCode must be 3 characters long / ISO4217 currency code, but was: '%s'.", ErrInvalidAssetCode, assetCode)
	}
	return nil
}
