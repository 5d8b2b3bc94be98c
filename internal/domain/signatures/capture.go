package signatures

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"math"
	"strings"

	"isp-contracts/internal/domain/contracts"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// Raster canónico de firma.
const (
	CanonicalWidth  = 600
	CanonicalHeight = 200

	MaxImageBytes         = 2 << 20
	DefaultMinInkCoverage = 0.001

	// píxeles por encima de este límite en cualquier upload se consideran hostiles
	maxSourcePixels = 40_000_000

	inkThreshold = 128
	penWidth     = 3.0
)

type Options struct {
	// MinInkCoverage es la fracción mínima de píxeles con tinta (0 = default).
	MinInkCoverage float64
}

// Capturer valida el payload de firma y lo normaliza a un PNG canónico.
type Capturer struct {
	minInk float64
}

func NewCapturer(opts Options) *Capturer {
	minInk := opts.MinInkCoverage
	if minInk <= 0 {
		minInk = DefaultMinInkCoverage
	}
	return &Capturer{minInk: minInk}
}

func (c *Capturer) Capture(p contracts.SignaturePayload) (contracts.NormalizedSignature, error) {
	name := strings.TrimSpace(p.SignerName)
	if name == "" {
		return contracts.NormalizedSignature{}, invalid(contracts.RuleSignerNameRequired, "")
	}
	idDoc := strings.TrimSpace(p.SignerIDDocument)
	if idDoc == "" {
		return contracts.NormalizedSignature{}, invalid(contracts.RuleSignerIDDocumentRequired, "")
	}

	hasStrokes := p.Strokes != nil
	hasImage := len(p.Image) > 0
	switch {
	case hasStrokes && hasImage:
		return contracts.NormalizedSignature{}, invalid(contracts.RuleSignatureAmbiguous, "send strokes or image, not both")
	case !hasStrokes && !hasImage:
		return contracts.NormalizedSignature{}, invalid(contracts.RuleSignatureMissing, "")
	}

	var (
		mask *image.Gray
		err  error
	)
	if hasStrokes {
		mask, err = rasterizeStrokes(*p.Strokes)
	} else {
		mask, err = normalizeUpload(p.Image)
	}
	if err != nil {
		return contracts.NormalizedSignature{}, err
	}

	coverage := inkCoverage(mask)
	if coverage < c.minInk {
		return contracts.NormalizedSignature{}, invalid(contracts.RuleInkCoverageTooLow, "")
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, mask); err != nil {
		return contracts.NormalizedSignature{}, err
	}

	return contracts.NormalizedSignature{
		SignerName:       name,
		SignerIDDocument: idDoc,
		PNG:              buf.Bytes(),
		InkCoverage:      coverage,
	}, nil
}

func rasterizeStrokes(canvas contracts.StrokeCanvas) (*image.Gray, error) {
	if !finitePositive(canvas.Width) || !finitePositive(canvas.Height) {
		return nil, invalid(contracts.RuleCanvasInvalid, "canvas width and height must be positive")
	}

	points := 0
	for _, s := range canvas.Strokes {
		for _, pt := range s {
			if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.X, 0) || math.IsInf(pt.Y, 0) {
				return nil, invalid(contracts.RuleCanvasInvalid, "non-finite point")
			}
		}
		points += len(s)
	}
	if points == 0 {
		return nil, invalid(contracts.RuleStrokesEmpty, "")
	}

	// escala uniforme y centrado dentro del raster canónico
	scale := math.Min(CanonicalWidth/canvas.Width, CanonicalHeight/canvas.Height)
	offX := (CanonicalWidth - canvas.Width*scale) / 2
	offY := (CanonicalHeight - canvas.Height*scale) / 2
	project := func(pt contracts.Point) (float32, float32) {
		x := clamp(offX+pt.X*scale, 0, CanonicalWidth)
		y := clamp(offY+pt.Y*scale, 0, CanonicalHeight)
		return float32(x), float32(y)
	}

	z := vector.NewRasterizer(CanonicalWidth, CanonicalHeight)
	// vértices siempre dentro de los límites del rasterizer
	moveTo := func(x, y float32) { z.MoveTo(clamp32(x, CanonicalWidth), clamp32(y, CanonicalHeight)) }
	lineTo := func(x, y float32) { z.LineTo(clamp32(x, CanonicalWidth), clamp32(y, CanonicalHeight)) }

	const hw = penWidth / 2
	for _, s := range canvas.Strokes {
		for i, pt := range s {
			x, y := project(pt)
			// mismo sentido de giro que los segmentos para que las áreas sumen
			moveTo(x-hw, y+hw)
			lineTo(x+hw, y+hw)
			lineTo(x+hw, y-hw)
			lineTo(x-hw, y-hw)
			z.ClosePath()

			if i == 0 {
				continue
			}
			px, py := project(s[i-1])
			dx, dy := x-px, y-py
			l := float32(math.Hypot(float64(dx), float64(dy)))
			if l == 0 {
				continue
			}
			nx, ny := -dy/l*hw, dx/l*hw
			moveTo(px+nx, py+ny)
			lineTo(x+nx, y+ny)
			lineTo(x-nx, y-ny)
			lineTo(px-nx, py-ny)
			z.ClosePath()
		}
	}

	alpha := image.NewAlpha(image.Rect(0, 0, CanonicalWidth, CanonicalHeight))
	z.Draw(alpha, alpha.Bounds(), image.Opaque, image.Point{})

	out := blankCanvas()
	for i, a := range alpha.Pix {
		if a >= inkThreshold {
			out.Pix[i] = 0
		}
	}
	return out, nil
}

func normalizeUpload(data []byte) (*image.Gray, error) {
	if len(data) > MaxImageBytes {
		return nil, invalid(contracts.RuleImageTooLarge, "max 2 MiB")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, invalid(contracts.RuleImageUnreadable, err.Error())
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxSourcePixels {
		return nil, invalid(contracts.RuleImageUnreadable, "unsupported dimensions")
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, invalid(contracts.RuleImageUnreadable, err.Error())
	}

	// fondo blanco: la transparencia no cuenta como tinta
	rgba := image.NewRGBA(image.Rect(0, 0, CanonicalWidth, CanonicalHeight))
	draw.Draw(rgba, rgba.Bounds(), image.White, image.Point{}, draw.Src)

	sb := src.Bounds()
	scale := math.Min(float64(CanonicalWidth)/float64(sb.Dx()), float64(CanonicalHeight)/float64(sb.Dy()))
	w := max(1, int(math.Round(float64(sb.Dx())*scale)))
	h := max(1, int(math.Round(float64(sb.Dy())*scale)))
	x0 := (CanonicalWidth - w) / 2
	y0 := (CanonicalHeight - h) / 2
	xdraw.CatmullRom.Scale(rgba, image.Rect(x0, y0, x0+w, y0+h), src, sb, xdraw.Over, nil)

	out := blankCanvas()
	for y := 0; y < CanonicalHeight; y++ {
		for x := 0; x < CanonicalWidth; x++ {
			g := color.GrayModel.Convert(rgba.At(x, y)).(color.Gray)
			if g.Y < inkThreshold {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out, nil
}

func blankCanvas() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, CanonicalWidth, CanonicalHeight))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	return img
}

func inkCoverage(img *image.Gray) float64 {
	ink := 0
	for _, p := range img.Pix {
		if p == 0 {
			ink++
		}
	}
	return float64(ink) / float64(len(img.Pix))
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clamp32(v float32, hi float32) float32 {
	return float32(clamp(float64(v), 0, float64(hi)))
}

func invalid(rule, detail string) error {
	return &contracts.InvalidSignatureError{Cause: rule, Detail: detail}
}
