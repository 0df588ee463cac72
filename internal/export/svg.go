// Package export renders stored trajectories to files outside the
// terminal.
package export

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

var palette = []string{"#00ff88", "#00ccff", "#ffcc00", "#ff4444", "#cc66ff", "#ffffff"}

// Series is one named column sampled at the shared times.
type Series struct {
	Name   string
	Values []float64
}

// WriteSVG draws every series against time as a polyline, all sharing one
// vertical scale, and labels them in a legend.
func WriteSVG(w io.Writer, times []float64, series []Series, width, height int) error {
	if len(times) < 2 || len(series) == 0 {
		return errors.New("export: need two samples and one series")
	}
	for _, s := range series {
		if len(s.Values) != len(times) {
			return fmt.Errorf("export: series %s has %d samples for %d times", s.Name, len(s.Values), len(times))
		}
	}

	minT, maxT := times[0], times[len(times)-1]
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s.Values {
			minY = math.Min(minY, v)
			maxY = math.Max(maxY, v)
		}
	}
	if maxT <= minT {
		maxT = minT + 1
	}
	pad := 0.1 * (maxY - minY)
	if pad == 0 {
		pad = 1
	}
	minY -= pad
	maxY += pad

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	if minY < 0 && maxY > 0 {
		y := float64(height) * maxY / (maxY - minY)
		fmt.Fprintf(&sb, `<line x1="0" y1="%.1f" x2="%d" y2="%.1f" stroke="#444444" stroke-dasharray="4 4"/>
`, y, width, y)
	}

	for i, s := range series {
		color := palette[i%len(palette)]
		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="`, color)
		for j, v := range s.Values {
			x := (times[j] - minT) / (maxT - minT) * float64(width)
			y := float64(height) - (v-minY)/(maxY-minY)*float64(height)
			if j == 0 {
				fmt.Fprintf(&sb, "M%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
			}
		}
		sb.WriteString("\"/>\n")
		fmt.Fprintf(&sb, `<text x="8" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>
`, 16*(i+1), color, s.Name)
	}
	sb.WriteString("</svg>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}
