// Package timespec turns user time tokens into exact rational seconds.
//
// Accepted shapes, tried in order:
//
//	f<N>          frame index, requires a frame rate
//	p/q           exact fraction of seconds
//	ss, mm:ss, hh:mm:ss  components may carry a decimal part
package timespec

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/forPelevin/kfcut/internal/types"
)

// DefaultEpsilonDivisor gives a tolerance of one third of a frame. That
// absorbs ~1ms of muxer rounding without reaching a neighbour frame while
// fps < 666.
const DefaultEpsilonDivisor = 3

// FractionDigits is the precision used when rendering seconds for the engine.
const FractionDigits = 10

var (
	reFrame    = regexp.MustCompile(`^f(\d+)$`)
	reFraction = regexp.MustCompile(`^(\d+)/(\d+)$`)
	reNumber   = regexp.MustCompile(`^(?:\d+(?:\.\d+)?|\.\d+)$`)

	colonWeights = []int64{1, 60, 3600}
)

// Parse converts token into a TimeSpec. fps is only consulted for frame
// indices; divisor <= 0 selects DefaultEpsilonDivisor.
func Parse(token string, fps types.Fraction, divisor int64) (types.TimeSpec, error) {
	tok := strings.TrimSpace(token)

	if m := reFrame.FindStringSubmatch(tok); m != nil {
		eps, err := FrameEpsilon(fps, divisor)
		if err != nil {
			return types.TimeSpec{}, fmt.Errorf("time %q: %w", token, err)
		}
		n, ok := new(big.Int).SetString(m[1], 10)
		if !ok {
			return types.TimeSpec{}, invalid(token, "bad frame index")
		}
		// n * den / num
		sec := new(big.Rat).SetFrac(
			new(big.Int).Mul(n, big.NewInt(fps.Den)),
			big.NewInt(fps.Num),
		)
		return types.TimeSpec{Token: token, Seconds: sec, Epsilon: eps}, nil
	}

	if m := reFraction.FindStringSubmatch(tok); m != nil {
		p, _ := new(big.Int).SetString(m[1], 10)
		q, _ := new(big.Int).SetString(m[2], 10)
		if q.Sign() == 0 {
			return types.TimeSpec{}, invalid(token, "zero denominator")
		}
		return types.TimeSpec{Token: token, Seconds: new(big.Rat).SetFrac(p, q)}, nil
	}

	parts := strings.Split(tok, ":")
	if len(parts) > len(colonWeights) {
		return types.TimeSpec{}, invalid(token, "more than 3 colon-separated parts")
	}
	sec := new(big.Rat)
	for i, part := range parts {
		if !reNumber.MatchString(part) {
			return types.TimeSpec{}, invalid(token, "expected f<N>, p/q, ss, mm:ss or hh:mm:ss")
		}
		if strings.HasPrefix(part, ".") {
			part = "0" + part
		}
		v, ok := new(big.Rat).SetString(part)
		if !ok {
			return types.TimeSpec{}, invalid(token, "bad number")
		}
		w := colonWeights[len(parts)-1-i]
		sec.Add(sec, v.Mul(v, big.NewRat(w, 1)))
	}
	return types.TimeSpec{Token: token, Seconds: sec}, nil
}

// FrameEpsilon returns fpsDen / (divisor * fpsNum).
func FrameEpsilon(fps types.Fraction, divisor int64) (*big.Rat, error) {
	if !fps.Valid() {
		return nil, fmt.Errorf("%w: frame rate %s", types.ErrMissingFrameRate, fps)
	}
	if divisor <= 0 {
		divisor = DefaultEpsilonDivisor
	}
	return new(big.Rat).SetFrac(
		big.NewInt(fps.Den),
		new(big.Int).Mul(big.NewInt(divisor), big.NewInt(fps.Num)),
	), nil
}

// Format renders r as a plain decimal with at most FractionDigits digits
// after the point. The integer part is always present ("0.5", never ".5").
func Format(r *big.Rat) string {
	if r == nil {
		return "0"
	}
	s := r.FloatString(FractionDigits)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}

func invalid(token, reason string) error {
	return fmt.Errorf("%w: %q: %s", types.ErrInvalidTimeFormat, token, reason)
}

// Validate checks only the shape of token, so malformed input is rejected
// before the media is probed. Frame indices are accepted without a rate.
func Validate(token string) error {
	_, err := Parse(token, types.Fraction{Num: 1, Den: 1}, 0)
	return err
}
