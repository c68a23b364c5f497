package transcoder

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Mode selects which knob a transform turns.
type Mode int

const (
	// ModeQuality re-encodes at a constant rate factor.
	ModeQuality Mode = iota
	// ModeScale shrinks the frame by a factor.
	ModeScale
)

func (m Mode) String() string {
	switch m {
	case ModeQuality:
		return "quality"
	case ModeScale:
		return "scale"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

const (
	// DefaultCRF is used when a request names neither knob.
	DefaultCRF = 28
	// MinCRF and MaxCRF bound the libx264 constant rate factor.
	MinCRF = 0
	MaxCRF = 51
)

// ErrInvalidParams is wrapped by every parameter validation failure.
var ErrInvalidParams = errors.New("invalid transform parameters")

// Params is the validated parameter set for one transform.
// Exactly one of CRF or Scale is meaningful, chosen by Mode.
type Params struct {
	Mode  Mode
	CRF   int
	Scale float64
}

// Quality returns CRF mode params.
func Quality(crf int) Params {
	return Params{Mode: ModeQuality, CRF: crf}
}

// Scaled returns scale mode params.
func Scaled(factor float64) Params {
	return Params{Mode: ModeScale, Scale: factor}
}

// Validate rejects anything that must never reach the external tool.
func (p Params) Validate() error {
	switch p.Mode {
	case ModeQuality:
		if p.CRF < MinCRF || p.CRF > MaxCRF {
			return fmt.Errorf("%w: crf must be between %d and %d, got %d", ErrInvalidParams, MinCRF, MaxCRF, p.CRF)
		}
	case ModeScale:
		if math.IsNaN(p.Scale) || math.IsInf(p.Scale, 0) {
			return fmt.Errorf("%w: scale must be a finite number", ErrInvalidParams)
		}
		if p.Scale <= 0 || p.Scale > 1 {
			return fmt.Errorf("%w: scale must be greater than 0 and at most 1, got %g", ErrInvalidParams, p.Scale)
		}
	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidParams, int(p.Mode))
	}
	return nil
}

// String renders the params for logs.
func (p Params) String() string {
	if p.Mode == ModeScale {
		return "scale=" + strconv.FormatFloat(p.Scale, 'g', -1, 64)
	}
	return "crf=" + strconv.Itoa(p.CRF)
}

// ParseParams builds params from raw request values. Blank values count as
// absent; when both are absent the quality mode with defaultCRF is used.
func ParseParams(crfStr, scaleStr string, defaultCRF int) (Params, error) {
	crfStr = strings.TrimSpace(crfStr)
	scaleStr = strings.TrimSpace(scaleStr)

	var p Params
	switch {
	case crfStr != "" && scaleStr != "":
		return Params{}, fmt.Errorf("%w: specify either crf or scale, not both", ErrInvalidParams)
	case scaleStr != "":
		v, err := strconv.ParseFloat(scaleStr, 64)
		if err != nil {
			return Params{}, fmt.Errorf("%w: scale %q is not a number", ErrInvalidParams, scaleStr)
		}
		p = Scaled(v)
	case crfStr != "":
		v, err := strconv.Atoi(crfStr)
		if err != nil {
			return Params{}, fmt.Errorf("%w: crf %q is not an integer", ErrInvalidParams, crfStr)
		}
		p = Quality(v)
	default:
		p = Quality(defaultCRF)
	}

	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}
