package animation

import "fmt"

// Easing reshapes the normalized phase between two keyframes.
// Every easing maps [0,1] onto [0,1] monotonically with f(0)=0 and f(1)=1.
type Easing int

const (
	Linear Easing = iota
	EaseIn
	EaseOut
	EaseInOut
)

var easingNames = []string{"linear", "easeIn", "easeOut", "easeInOut"}

func (e Easing) String() string {
	if e >= 0 && int(e) < len(easingNames) {
		return easingNames[e]
	}
	return fmt.Sprintf("Easing(%d)", int(e))
}

// ParseEasing maps an easing name to its Easing. Empty means linear.
func ParseEasing(name string) (Easing, error) {
	if name == "" {
		return Linear, nil
	}
	for i, n := range easingNames {
		if n == name {
			return Easing(i), nil
		}
	}
	return Linear, fmt.Errorf("unknown easing %q", name)
}

// Apply evaluates the easing at phase p. p is clamped to [0,1].
func (e Easing) Apply(p float64) float64 {
	p = clamp01(p)
	switch e {
	case EaseIn:
		return p * p * p
	case EaseOut:
		q := 1 - p
		return 1 - q*q*q
	case EaseInOut:
		return easeInOutCubic(p)
	}
	return p
}

// easeInOutCubic applies smooth easing function
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - pow(-2*t+2, 3)/2
}

// pow calculates x^n
func pow(x float64, n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= x
	}
	return result
}
