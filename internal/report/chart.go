package report

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Marker is a vertical event line on a chart.
type Marker struct {
	Year  int
	Label string
	Color color.Color
}

// ChartSpec is everything a Surface needs to draw one page.
type ChartSpec struct {
	Title  string
	XLabel string
	YLabel string
	Years  []int
	// Values aligns with Years. NaN points are left out of the line.
	Values  []float64
	Markers []Marker
}

// Surface receives one chart per call and emits one page for it.
type Surface interface {
	AddPage(spec ChartSpec) error
}

// AidPolicy reports whether event labels for a country carry the aid suffix.
type AidPolicy func(country string) bool

// ExemptCountries returns a policy that omits the aid suffix for the given
// codes and appends it for every other country.
func ExemptCountries(codes ...string) AidPolicy {
	exempt := make(map[string]bool, len(codes))
	for _, c := range codes {
		exempt[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	return func(country string) bool {
		return !exempt[strings.ToUpper(country)]
	}
}

// DefaultAidPolicy exempts Puerto Rico and the United States, whose aid
// relationship is internal.
var DefaultAidPolicy = ExemptCountries("PRI", "USA")

func aidSuffix(recorded bool) string {
	if recorded {
		return " (aid recorded)"
	}
	return " (no aid recorded)"
}

// Palette returns n evenly spaced HSLuv hues at fixed saturation and
// lightness, drawn semi-transparent.
func Palette(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	out := make([]color.Color, n)
	for i := range out {
		h := math.Mod(float64(i)/float64(n)+0.01, 1) * 359
		r, g, b := colorful.HSLuv(h, 0.9, 0.65).Clamped().RGB255()
		out[i] = color.NRGBA{R: r, G: g, B: b, A: 0xb3}
	}
	return out
}

// legendFontSize caps the legend at 8pt and shrinks it half a point for
// every entry past six, down to 5pt.
func legendFontSize(entries int) float64 {
	size := 8.0
	if entries > 6 {
		size -= float64(entries-6) * 0.5
	}
	return math.Max(size, 5)
}

func chartTitle(country, indicator string) string {
	return fmt.Sprintf("%s: %s", country, indicator)
}
