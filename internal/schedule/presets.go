package schedule

import (
	"fmt"
	"sort"
)

// Preset is a named daily profile repeated across the week.
type Preset struct {
	Name        string
	Description string
	day         [24]float64
}

var presets = map[string]Preset{
	"comfort": {Name: "Comfort", Description: "22°C 06:00-22:00, 18°C at night", day: dayProfile(18, 6, 22, 16, 18)},
	"eco":     {Name: "Eco", Description: "20°C 07:00-23:00, 16°C at night", day: dayProfile(16, 7, 20, 16, 16)},
	"work":    {Name: "Work From Home", Description: "22°C 08:00-18:00, 18°C otherwise", day: dayProfile(18, 8, 22, 10, 18)},
	"away":    {Name: "Away", Description: "15°C constant frost protection", day: dayProfile(15, 0, 15, 24, 15)},
}

// dayProfile builds a day of low until start, high for hours, then rest.
func dayProfile(low float64, start int, high float64, hours int, rest float64) [24]float64 {
	var d [24]float64
	for h := range d {
		switch {
		case h < start:
			d[h] = low
		case h < start+hours:
			d[h] = high
		default:
			d[h] = rest
		}
	}
	return d
}

// Week expands the preset to Length set-points.
func (p Preset) Week() []float64 {
	out := make([]float64, 0, Length)
	for i := 0; i < 7; i++ {
		out = append(out, p.day[:]...)
	}
	return out
}

// LookupPreset returns the named preset.
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p, nil
}

// PresetNames lists the available presets, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
