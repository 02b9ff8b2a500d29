package payment

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
)

// Money is an amount in paisa.
type Money int64

// ParseMoney accepts "500", "500.5" and "500.50". More than two decimals is rejected.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.Wrap(apperrors.ErrInvalidInput, "empty amount")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return 0, errors.Wrapf(apperrors.ErrInvalidInput, "amount %q has more than two decimals", s)
	}
	frac += strings.Repeat("0", 2-len(frac))

	neg := strings.HasPrefix(whole, "-")
	w, err := strconv.ParseInt(strings.TrimPrefix(whole, "-"), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(apperrors.ErrInvalidInput, "amount %q", s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || strings.HasPrefix(frac, "-") {
		return 0, errors.Wrapf(apperrors.ErrInvalidInput, "amount %q", s)
	}
	if w < 0 || w > (math.MaxInt64-f)/100 {
		return 0, errors.Wrapf(apperrors.ErrInvalidInput, "amount %q out of range", s)
	}
	m := Money(w*100 + f)
	if neg {
		m = -m
	}
	return m, nil
}

// String formats the amount the way the gateway expects, e.g. "500.00".
func (m Money) String() string {
	sign := ""
	if m < 0 {
		sign, m = "-", -m
	}
	return fmt.Sprintf("%s%d.%02d", sign, int64(m)/100, int64(m)%100)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and numeric strings.
func (m *Money) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrap(apperrors.ErrInvalidInput, "amount must be a number")
	}
	v, err := ParseMoney(n.String())
	if err != nil {
		return err
	}
	*m = v
	return nil
}
