package pricing

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of decimal places every stored amount is rounded to.
// Rounding is half away from zero (decimal.Decimal.Round).
const Places = 3

// ErrAmountOutOfRange is returned for amounts above MaxAmount or totals
// above MaxTotal.
var ErrAmountOutOfRange = errors.New("amount out of range")

var (
	// MaxAmount bounds a unit price or deposit. With any int32 quantity the
	// derived customer price still fits NUMERIC(14,3).
	MaxAmount = decimal.RequireFromString("9999999999.999")
	// MaxTotal bounds a batch total, stored as NUMERIC(16,3).
	MaxTotal = decimal.RequireFromString("9999999999999.999")

	baseMultiplier = decimal.RequireFromString("1.279")
	serviceFeeRate = decimal.RequireFromString("0.20")
	perUnitFee     = decimal.RequireFromString("0.650")
	flatFee        = decimal.NewFromInt(7)
)

// Input holds the three values every derived amount depends on.
type Input struct {
	UnitPrice decimal.Decimal // USD
	Quantity  int32
	Deposit   decimal.Decimal
}

// Quote is the priced form of an Input. The Input it carries is the
// normalized one, so pricing Quote.Input again yields the same Quote.
type Quote struct {
	Input

	Base          decimal.Decimal
	ServiceFee    decimal.Decimal
	QuantityFee   decimal.Decimal
	CustomerPrice decimal.Decimal
	Remaining     decimal.Decimal
	Profit        decimal.Decimal
}

// Normalize clamps negative values to zero and rounds money inputs to Places.
func Normalize(in Input) Input {
	return Input{
		UnitPrice: clampAmount(in.UnitPrice),
		Quantity:  max(in.Quantity, 0),
		Deposit:   clampAmount(in.Deposit),
	}
}

// Price computes the derived amounts for a single order row:
//
//	base          = unitPrice * 1.279
//	serviceFee    = base * 0.20
//	qtyFee        = qty * 0.650 + 7
//	customerPrice = base + serviceFee + qtyFee
//	profit        = serviceFee
//	remaining     = customerPrice - deposit
//
// Remaining is taken from the rounded customer price so stored values always
// satisfy remaining == customerPrice - deposit exactly.
func Price(in Input) Quote {
	in = Normalize(in)

	base := in.UnitPrice.Mul(baseMultiplier)
	serviceFee := base.Mul(serviceFeeRate)
	qtyFee := decimal.NewFromInt32(in.Quantity).Mul(perUnitFee).Add(flatFee)

	customerPrice := base.Add(serviceFee).Add(qtyFee).Round(Places)

	return Quote{
		Input:         in,
		Base:          base.Round(Places),
		ServiceFee:    serviceFee.Round(Places),
		QuantityFee:   qtyFee.Round(Places),
		CustomerPrice: customerPrice,
		Remaining:     customerPrice.Sub(in.Deposit),
		Profit:        serviceFee.Round(Places),
	}
}

// maxIntegerDigits is the number of integer digits in MaxAmount.
const maxIntegerDigits = 10

// ParseAmount converts user input into an amount in [0, MaxAmount].
// Empty, non-numeric and negative input all become zero; larger input is
// clamped to MaxAmount. Use CheckAmount to reject it instead.
func ParseAmount(s string) decimal.Decimal {
	d, _ := parseAmount(s)
	return d
}

// CheckAmount returns ErrAmountOutOfRange if s parses to an amount above
// MaxAmount. Input ParseAmount treats as zero passes.
func CheckAmount(s string) error {
	_, err := parseAmount(s)
	return err
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, nil
	}
	return boundAmount(d)
}

// ParseQuantity converts user input into a non-negative quantity.
// Fractions are truncated toward zero; anything unparseable becomes zero.
func ParseQuantity(s string) int32 {
	d := ParseAmount(s)
	if d.GreaterThan(decimal.NewFromInt32(math.MaxInt32)) {
		return math.MaxInt32
	}
	return int32(d.IntPart())
}

func clampAmount(d decimal.Decimal) decimal.Decimal {
	d, _ = boundAmount(d)
	return d
}

// boundAmount rounds d to Places within [0, MaxAmount]. Magnitude is
// checked on the coefficient and exponent first: Round and comparisons
// rescale, and their cost grows with the exponent.
func boundAmount(d decimal.Decimal) (decimal.Decimal, error) {
	if d.Sign() <= 0 {
		return decimal.Zero, nil
	}
	switch n := integerDigits(d); {
	case n > maxIntegerDigits:
		return MaxAmount, ErrAmountOutOfRange
	case n < -Places:
		// Below 0.0001: rounds to zero.
		return decimal.Zero, nil
	}
	d = d.Round(Places)
	if d.GreaterThan(MaxAmount) {
		return MaxAmount, ErrAmountOutOfRange
	}
	return d, nil
}

// integerDigits returns the number of digits before the decimal point of a
// positive d, negative when d < 0.1 (0.0005 gives -3).
func integerDigits(d decimal.Decimal) int64 {
	return int64(len(d.Coefficient().Text(10))) + int64(d.Exponent())
}

// Totals aggregates a group of priced rows.
type Totals struct {
	USD      decimal.Decimal
	Quantity int64
	Profit   decimal.Decimal
}

// Sum adds up unit prices, quantities and profits across quotes.
func Sum(quotes []Quote) Totals {
	t := Totals{USD: decimal.Zero, Profit: decimal.Zero}
	for _, q := range quotes {
		t.USD = t.USD.Add(q.UnitPrice)
		t.Quantity += int64(q.Quantity)
		t.Profit = t.Profit.Add(q.Profit)
	}
	return t
}

// InRange reports whether every total fits under MaxTotal.
func (t Totals) InRange() bool {
	return t.USD.LessThanOrEqual(MaxTotal) && t.Profit.LessThanOrEqual(MaxTotal)
}

// Equal reports whether two totals agree to within one unit of the last place.
func (t Totals) Equal(other Totals) bool {
	tolerance := decimal.New(1, -Places)
	return t.Quantity == other.Quantity &&
		t.USD.Sub(other.USD).Abs().LessThanOrEqual(tolerance) &&
		t.Profit.Sub(other.Profit).Abs().LessThanOrEqual(tolerance)
}
