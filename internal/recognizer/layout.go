package recognizer

import (
	"math"
	"sort"
	"strings"
)

type box struct {
	X, Y, W, H int
}

type region struct {
	Box           box     `json:"box"`
	Text          string  `json:"text"`
	RecConfidence float64 `json:"rec_confidence"`
}

type imageResult struct {
	Width   int      `json:"width"`
	Height  int      `json:"height"`
	Regions []region `json:"regions"`
}

// assemble orders regions into lines top to bottom, left to right, and
// returns the text with the mean recognition confidence scaled to 0-100.
func (r *imageResult) assemble() (string, float64) {
	regions := make([]region, 0, len(r.Regions))
	var sum float64
	for _, reg := range r.Regions {
		if strings.TrimSpace(reg.Text) == "" {
			continue
		}
		regions = append(regions, reg)
		sum += reg.RecConfidence
	}
	if len(regions) == 0 {
		return "", 0
	}

	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].Box.Y != regions[j].Box.Y {
			return regions[i].Box.Y < regions[j].Box.Y
		}
		return regions[i].Box.X < regions[j].Box.X
	})

	var lines [][]region
	for _, reg := range regions {
		if n := len(lines); n > 0 && sameLine(lines[n-1][0], reg) {
			lines[n-1] = append(lines[n-1], reg)
			continue
		}
		lines = append(lines, []region{reg})
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		sort.SliceStable(line, func(i, j int) bool { return line[i].Box.X < line[j].Box.X })
		words := make([]string, 0, len(line))
		for _, reg := range line {
			words = append(words, strings.TrimSpace(reg.Text))
		}
		out = append(out, strings.Join(words, " "))
	}

	confidence := sum / float64(len(regions))
	if confidence <= 1 {
		confidence *= 100
	}
	return strings.Join(out, "\n"), math.Round(confidence)
}

// sameLine reports whether the vertical center of b lies within the band of a.
func sameLine(a, b region) bool {
	center := float64(b.Box.Y) + float64(b.Box.H)/2
	half := math.Max(float64(a.Box.H), 1) / 2
	aCenter := float64(a.Box.Y) + float64(a.Box.H)/2
	return math.Abs(center-aCenter) <= half
}
