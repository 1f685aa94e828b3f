// Package validation checks values received from wallet servers and from
// configuration before the flow relies on them.
package validation

import (
	"fmt"
	"math/big"
	"net/url"
	"regexp"

	openpayments "github.com/ilpay/openpayments-go"
)

// assetCodeRegex matches a 3 letter ISO 4217 currency code.
var assetCodeRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidateAmount validates that an amount string is a non-negative integer
// in minor units, as carried by InterledgerAmount.Value.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("%w: amount cannot be empty", openpayments.ErrInvalidAmount)
	}

	// Parse as big.Int to handle values beyond 64 bits
	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("%w: invalid amount format: %s", openpayments.ErrInvalidAmount, amount)
	}

	if amt.Sign() < 0 {
		return fmt.Errorf("%w: amount cannot be negative, got: %s", openpayments.ErrInvalidAmount, amount)
	}

	return nil
}

// ValidateAssetCode validates an upper case ISO 4217 code.
func ValidateAssetCode(code string) error {
	if !assetCodeRegex.MatchString(code) {
		return fmt.Errorf("%w: expected 3 upper case letters, got %q", openpayments.ErrInvalidAssetCode, code)
	}
	return nil
}

// ValidateAssetScale validates a scale in 0..255.
func ValidateAssetScale(scale int) error {
	if scale < 0 || scale > openpayments.MaxAssetScale {
		return fmt.Errorf("%w: must be between 0 and %d, got %d", openpayments.ErrInvalidAssetScale, openpayments.MaxAssetScale, scale)
	}
	return nil
}

// ValidateWalletURL validates an absolute http or https URL.
func ValidateWalletURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: url cannot be empty", openpayments.ErrInvalidWalletAddress)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", openpayments.ErrInvalidWalletAddress, err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%w: %s is not an absolute http(s) url", openpayments.ErrInvalidWalletAddress, raw)
	}
	return nil
}

// ValidateInterledgerAmount validates all three parts of an amount.
func ValidateInterledgerAmount(a openpayments.InterledgerAmount) error {
	if err := ValidateAmount(a.Value); err != nil {
		return err
	}
	if err := ValidateAssetCode(a.AssetCode); err != nil {
		return err
	}
	return ValidateAssetScale(a.AssetScale)
}

// ValidatePaymentPointer performs comprehensive validation of wallet metadata.
// The flow cannot address a wallet whose servers are not absolute URLs.
func ValidatePaymentPointer(p openpayments.PaymentPointer) error {
	if err := ValidateWalletURL(p.ID.String()); err != nil {
		return fmt.Errorf("invalid wallet: id %w", err)
	}
	if err := ValidateAssetCode(p.AssetCode); err != nil {
		return fmt.Errorf("invalid wallet: %w", err)
	}
	if err := ValidateAssetScale(p.AssetScale); err != nil {
		return fmt.Errorf("invalid wallet: %w", err)
	}
	if err := ValidateWalletURL(p.AuthServer); err != nil {
		return fmt.Errorf("invalid wallet: authServer %w", err)
	}
	if err := ValidateWalletURL(p.ResourceServer); err != nil {
		return fmt.Errorf("invalid wallet: resourceServer %w", err)
	}
	return nil
}

// ValidateQuote validates the amounts of a quote the flow is about to pay.
func ValidateQuote(q openpayments.Quote) error {
	if q.ID == "" {
		return fmt.Errorf("invalid quote: id cannot be empty")
	}
	if q.DebitAmount == nil {
		return fmt.Errorf("invalid quote: debitAmount is missing")
	}
	if err := ValidateInterledgerAmount(*q.DebitAmount); err != nil {
		return fmt.Errorf("invalid quote: debitAmount %w", err)
	}
	if q.ReceiveAmount != nil {
		if err := ValidateInterledgerAmount(*q.ReceiveAmount); err != nil {
			return fmt.Errorf("invalid quote: receiveAmount %w", err)
		}
	}
	return nil
}

// ValidateOptions validates client options.
func ValidateOptions(o openpayments.Options) error {
	return o.Validate()
}
