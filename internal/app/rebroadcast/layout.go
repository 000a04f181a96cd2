package rebroadcast

import (
	"fmt"
	"math"
	"strings"
)

// Tile is the placement of one video source on the output canvas.
type Tile struct {
	X, Y, W, H int
}

// Grid tiles n sources on a width x height canvas using ceil(sqrt(n))
// columns. Two sources end up side by side, each taking half the frame.
// Tile sizes are rounded down to even numbers for yuv420p.
func Grid(n, width, height int) []Tile {
	if n <= 0 {
		return nil
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	tw := (width / cols) &^ 1
	th := (height / rows) &^ 1
	tiles := make([]Tile, n)
	for i := range n {
		tiles[i] = Tile{X: (i % cols) * tw, Y: (i / cols) * th, W: tw, H: th}
	}
	return tiles
}

// FilterGraph builds the -filter_complex value tiling n videos and mixing
// n audios of a single SDP input where source i has video at stream 2i and
// audio at stream 2i+1. Outputs are labelled [vout] and [aout].
func FilterGraph(n, width, height, framerate int) string {
	tiles := Grid(n, width, height)
	parts := make([]string, 0, 2*n+2)
	for i, t := range tiles {
		parts = append(parts, fmt.Sprintf(
			"[0:%d]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d[v%d]",
			2*i, t.W, t.H, t.W, t.H, framerate, i))
	}
	for i := range n {
		parts = append(parts, fmt.Sprintf("[0:%d]aresample=async=1:first_pts=0[a%d]", 2*i+1, i))
	}

	canvas := fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black", width, height)
	if n == 1 {
		parts = append(parts, "[v0]"+canvas+"[vout]")
		parts = append(parts, "[a0]aformat=channel_layouts=stereo[aout]")
		return strings.Join(parts, ";")
	}

	var vin, ain strings.Builder
	positions := make([]string, n)
	for i, t := range tiles {
		fmt.Fprintf(&vin, "[v%d]", i)
		fmt.Fprintf(&ain, "[a%d]", i)
		positions[i] = fmt.Sprintf("%d_%d", t.X, t.Y)
	}
	parts = append(parts, fmt.Sprintf("%sxstack=inputs=%d:layout=%s:fill=black,%s[vout]",
		vin.String(), n, strings.Join(positions, "|"), canvas))
	parts = append(parts, fmt.Sprintf("%samix=inputs=%d:duration=longest:dropout_transition=0,aformat=channel_layouts=stereo[aout]",
		ain.String(), n))
	return strings.Join(parts, ";")
}
