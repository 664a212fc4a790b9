package display

import (
	"image"
)

// Region is a set of rectangles. Rectangles may overlap; consumers only
// need coverage, not a canonical form.
type Region []image.Rectangle

func RegionFromRect(r image.Rectangle) Region {
	if r.Empty() {
		return nil
	}
	return Region{r}
}

func (r Region) IsEmpty() bool {
	for _, rect := range r {
		if !rect.Empty() {
			return false
		}
	}
	return true
}

func (r Region) Bounds() image.Rectangle {
	var bounds image.Rectangle
	for _, rect := range r {
		bounds = bounds.Union(rect)
	}
	return bounds
}

func (r Region) Union(other Region) Region {
	result := make(Region, 0, len(r)+len(other))
	for _, rect := range r {
		if !rect.Empty() {
			result = append(result, rect)
		}
	}
	for _, rect := range other {
		if !rect.Empty() {
			result = append(result, rect)
		}
	}
	return result
}

func (r Region) Intersect(clip image.Rectangle) Region {
	var result Region
	for _, rect := range r {
		rect = rect.Intersect(clip)
		if !rect.Empty() {
			result = append(result, rect)
		}
	}
	return result
}

func (r Region) Translate(p image.Point) Region {
	result := make(Region, len(r))
	for i, rect := range r {
		result[i] = rect.Add(p)
	}
	return result
}
