// SPDX-License-Identifier: Unlicense OR MIT

package codec

// TextureWidth is the fixed width of a splat texture's array layers.
const TextureWidth = 2048

// TextureHeight is the maximum height of a splat texture's array layers.
const TextureHeight = 2048

// TextureSize describes the dimensions a splat texture must have to hold at
// least n primitives, per §3's capacity growth rule.
type TextureSize struct {
	Width, Height, Depth int
}

// Max returns the texel capacity of the size (Width*Height*Depth).
func (s TextureSize) Max() int {
	return s.Width * s.Height * s.Depth
}

// ComputeTextureSize implements texture_size(n): width is fixed at 2048,
// height grows to fit n rows up to 2048, and depth grows to fit whatever
// doesn't fit in one layer.
func ComputeTextureSize(n int) TextureSize {
	if n <= 0 {
		return TextureSize{Width: TextureWidth, Height: 0, Depth: 0}
	}
	height := ceilDiv(n, TextureWidth)
	if height > TextureHeight {
		height = TextureHeight
	}
	perLayer := TextureWidth * height
	depth := ceilDiv(n, perLayer)
	return TextureSize{Width: TextureWidth, Height: height, Depth: depth}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// RoundUpToWidth rounds n up to the next multiple of TextureWidth, the
// per-generator slice rounding rule in §4.2's layout rule.
func RoundUpToWidth(n int) int {
	return ceilDiv(n, TextureWidth) * TextureWidth
}
