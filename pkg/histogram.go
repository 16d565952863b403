package eventbuilder

import (
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Histogram is a fixed binning 1D histogram. In-range fills are kept
// unbinned; binning and statistics are computed with gonum on demand.
type Histogram struct {
	Name      string
	Title     string
	Min       float64
	Max       float64
	Underflow float64
	Overflow  float64

	dividers []float64
	values   []float64
	sorted   bool
}

func NewHistogram(name string, title string, nBins int, min float64, max float64) *Histogram {
	return &Histogram{
		Name:     name,
		Title:    title,
		Min:      min,
		Max:      max,
		dividers: floats.Span(make([]float64, nBins+1), min, max),
		sorted:   true,
	}
}

func (h *Histogram) Fill(x float64) {
	if x < h.Min {
		h.Underflow++
		return
	}
	if x >= h.Max {
		h.Overflow++
		return
	}
	h.values = append(h.values, x)
	h.sorted = false
}

func (h *Histogram) NBins() int {
	return len(h.dividers) - 1
}

func (h *Histogram) BinWidth() float64 {
	return (h.Max - h.Min) / float64(h.NBins())
}

func (h *Histogram) BinLowEdge(bin int) float64 {
	return h.dividers[bin]
}

func (h *Histogram) BinCenter(bin int) float64 {
	return (h.dividers[bin] + h.dividers[bin+1]) / 2
}

// Bins returns the content of each in-range bin.
func (h *Histogram) Bins() []float64 {
	if !h.sorted {
		slices.Sort(h.values)
		h.sorted = true
	}
	return stat.Histogram(nil, h.dividers, h.values, nil)
}

// Entries counts the in-range fills.
func (h *Histogram) Entries() int {
	return len(h.values)
}

// Mean returns 0 for an empty histogram.
func (h *Histogram) Mean() float64 {
	if len(h.values) == 0 {
		return 0
	}
	return stat.Mean(h.values, nil)
}

// Mode returns the centre of the fullest bin, the first one on ties.
func (h *Histogram) Mode() float64 {
	if len(h.values) == 0 {
		return 0
	}
	return h.BinCenter(floats.MaxIdx(h.Bins()))
}
