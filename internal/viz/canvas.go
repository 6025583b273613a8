package viz

import (
	"math"
	"strings"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const brailleBlank = 0x2800

// Canvas is a character grid addressed in braille sub-pixels. A canvas of
// Width x Height cells has (Width*2) x (Height*4) pixels.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
		for j := range c.Grid[i] {
			c.Grid[i][j] = brailleBlank
		}
	}
	return c
}

// Set lights the pixel at (x, y). Out-of-range pixels are ignored.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}

	col := x / 2
	row := y / 4
	if col >= c.Width || row >= c.Height {
		return
	}

	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

// IsSet reports whether the pixel at (x, y) is lit.
func (c *Canvas) IsSet(x, y int) bool {
	if x < 0 || y < 0 || x/2 >= c.Width || y/4 >= c.Height {
		return false
	}
	return c.Grid[y/4][x/2]&rune(pixelMap[y%4][x%2]) != 0
}

// DrawLine draws a line using Bresenham's algorithm
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// DrawPath draws the polyline through points given in world coordinates,
// scaled uniformly to fit the canvas. up and right pick the world axes shown
// upwards and to the right.
func (c *Canvas) DrawPath(right, up []float64) {
	n := min(len(right), len(up))
	if n == 0 {
		return
	}

	minR, maxR := bounds(right[:n])
	minU, maxU := bounds(up[:n])
	pw, ph := float64(c.Width*2-1), float64(c.Height*4-1)
	span := math.Max(maxR-minR, maxU-minU)
	if span == 0 {
		span = 1
	}
	scale := math.Min(pw, ph) / span

	// Centre the path on the canvas.
	offR := (pw - (maxR-minR)*scale) / 2
	offU := (ph - (maxU-minU)*scale) / 2
	px := func(i int) (int, int) {
		x := offR + (right[i]-minR)*scale
		y := ph - (offU + (up[i]-minU)*scale)
		return int(math.Round(x)), int(math.Round(y))
	}

	x0, y0 := px(0)
	c.Set(x0, y0)
	for i := 1; i < n; i++ {
		x1, y1 := px(i)
		c.DrawLine(x0, y0, x1, y1)
		x0, y0 = x1, y1
	}
}

func bounds(v []float64) (lo, hi float64) {
	lo, hi = v[0], v[0]
	for _, x := range v[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
