// Package optimize implements the on-demand image derivative cache: a
// descriptor names a source asset plus one transform, and every encoding
// of that descriptor (query string, path token, cache path) derives from
// the same canonical form.
package optimize

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sstepanchuk/leptos-image/internal/platform/errors"
)

// Option is the transform applied to a source image. Exactly two
// implementations exist, Resize and Blur; the unexported method keeps the
// set closed so consumers can switch exhaustively.
type Option interface {
	isOption()
}

// Resize produces a lossy WebP derivative bounded by Width x Height.
type Resize struct {
	Width   uint32
	Height  uint32
	Quality uint8
}

func (Resize) isOption() {}

// Blur produces a tiny SVG placeholder: the source shrunk to
// Width x Height, embedded as WebP into an SVG of SVGWidth x SVGHeight
// with a gaussian blur of Sigma applied.
type Blur struct {
	Width     uint32
	Height    uint32
	SVGWidth  uint32
	SVGHeight uint32
	Sigma     uint8
}

func (Blur) isOption() {}

// Descriptor names one derivative: a source path plus the transform to
// apply. Variants hold plain values, so descriptors compare with == and
// work as map keys.
type Descriptor struct {
	Src    string
	Option Option
}

// Query keys follow the nested bracket convention, with "r"/"b"
// discriminating the variant.
const (
	keySrc           = "src"
	keyResizeWidth   = "option[r][w]"
	keyResizeHeight  = "option[r][h]"
	keyResizeQuality = "option[r][q]"
	keyBlurWidth     = "option[b][w]"
	keyBlurHeight    = "option[b][h]"
	keyBlurSVGWidth  = "option[b][sw]"
	keyBlurSVGHeight = "option[b][sh]"
	keyBlurSigma     = "option[b][s]"
)

// EncodeQuery renders the descriptor as its canonical query string:
// fields in declaration order, bracket keys raw, values percent-escaped.
// The result doubles as the descriptor's cache key.
func (d Descriptor) EncodeQuery() string {
	var b strings.Builder
	b.WriteString(keySrc)
	b.WriteByte('=')
	b.WriteString(url.QueryEscape(d.Src))

	writeField := func(key string, value uint64) {
		b.WriteByte('&')
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(strconv.FormatUint(value, 10))
	}

	switch opt := d.Option.(type) {
	case Resize:
		writeField(keyResizeWidth, uint64(opt.Width))
		writeField(keyResizeHeight, uint64(opt.Height))
		writeField(keyResizeQuality, uint64(opt.Quality))
	case Blur:
		writeField(keyBlurWidth, uint64(opt.Width))
		writeField(keyBlurHeight, uint64(opt.Height))
		writeField(keyBlurSVGWidth, uint64(opt.SVGWidth))
		writeField(keyBlurSVGHeight, uint64(opt.SVGHeight))
		writeField(keyBlurSigma, uint64(opt.Sigma))
	default:
		panic(fmt.Sprintf("unknown image option %T", d.Option))
	}

	return b.String()
}

// URLPath builds the lookup URL for this descriptor under the given
// handler mount, e.g. "/cache/image?src=...&option[r][w]=...".
func (d Descriptor) URLPath(handlerPath string) string {
	return handlerPath + "?" + d.EncodeQuery()
}

func (d Descriptor) String() string {
	return d.EncodeQuery()
}

// DecodeQuery reconstructs a descriptor from its query encoding. The
// input may be a bare query string or a full URL; only the portion after
// the last '?' is considered. All failures carry the decode kind.
func DecodeQuery(raw string) (Descriptor, error) {
	const op = "decode-query"

	if i := strings.LastIndex(raw, "?"); i >= 0 {
		raw = raw[i+1:]
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return Descriptor{}, errors.Wrap(errors.KindDecode, op, "malformed query", err)
	}

	src := values.Get(keySrc)
	if src == "" {
		return Descriptor{}, errors.New(errors.KindDecode, op, "missing src")
	}

	hasResize := hasAny(values, keyResizeWidth, keyResizeHeight, keyResizeQuality)
	hasBlur := hasAny(values, keyBlurWidth, keyBlurHeight, keyBlurSVGWidth, keyBlurSVGHeight, keyBlurSigma)

	switch {
	case hasResize && hasBlur:
		return Descriptor{}, errors.New(errors.KindDecode, op, "ambiguous option: both resize and blur fields present")
	case hasResize:
		width, err := parseUint32(values, keyResizeWidth)
		if err != nil {
			return Descriptor{}, err
		}
		height, err := parseUint32(values, keyResizeHeight)
		if err != nil {
			return Descriptor{}, err
		}
		quality, err := parseQuality(values, keyResizeQuality)
		if err != nil {
			return Descriptor{}, err
		}
		return Descriptor{Src: src, Option: Resize{Width: width, Height: height, Quality: quality}}, nil
	case hasBlur:
		width, err := parseUint32(values, keyBlurWidth)
		if err != nil {
			return Descriptor{}, err
		}
		height, err := parseUint32(values, keyBlurHeight)
		if err != nil {
			return Descriptor{}, err
		}
		svgWidth, err := parseUint32(values, keyBlurSVGWidth)
		if err != nil {
			return Descriptor{}, err
		}
		svgHeight, err := parseUint32(values, keyBlurSVGHeight)
		if err != nil {
			return Descriptor{}, err
		}
		sigma, err := parseUint8(values, keyBlurSigma)
		if err != nil {
			return Descriptor{}, err
		}
		return Descriptor{Src: src, Option: Blur{
			Width:     width,
			Height:    height,
			SVGWidth:  svgWidth,
			SVGHeight: svgHeight,
			Sigma:     sigma,
		}}, nil
	default:
		return Descriptor{}, errors.New(errors.KindDecode, op, "missing option fields")
	}
}

// PathToken packs the canonical query encoding into a single path
// segment. The URL-safe alphabet guarantees the token never contains a
// path separator.
func (d Descriptor) PathToken() string {
	return base64.URLEncoding.EncodeToString([]byte(d.EncodeQuery()))
}

// DescriptorFromToken is the inverse of PathToken.
func DescriptorFromToken(token string) (Descriptor, error) {
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Descriptor{}, errors.Wrap(errors.KindDecode, "decode-token", "invalid path token", err)
	}
	return DecodeQuery(string(decoded))
}

func hasAny(values url.Values, keys ...string) bool {
	for _, key := range keys {
		if _, ok := values[key]; ok {
			return true
		}
	}
	return false
}

func parseUint32(values url.Values, key string) (uint32, error) {
	raw, ok := values[key]
	if !ok || len(raw) == 0 {
		return 0, errors.New(errors.KindDecode, "decode-query", fmt.Sprintf("missing field %s", key))
	}
	v, err := strconv.ParseUint(raw[0], 10, 32)
	if err != nil {
		return 0, errors.Wrap(errors.KindDecode, "decode-query", fmt.Sprintf("invalid field %s", key), err)
	}
	return uint32(v), nil
}

func parseUint8(values url.Values, key string) (uint8, error) {
	raw, ok := values[key]
	if !ok || len(raw) == 0 {
		return 0, errors.New(errors.KindDecode, "decode-query", fmt.Sprintf("missing field %s", key))
	}
	v, err := strconv.ParseUint(raw[0], 10, 8)
	if err != nil {
		return 0, errors.Wrap(errors.KindDecode, "decode-query", fmt.Sprintf("invalid field %s", key), err)
	}
	return uint8(v), nil
}

// parseQuality additionally rejects values above 100, the WebP encoder's
// quality ceiling.
func parseQuality(values url.Values, key string) (uint8, error) {
	v, err := parseUint8(values, key)
	if err != nil {
		return 0, err
	}
	if v > 100 {
		return 0, errors.New(errors.KindDecode, "decode-query", fmt.Sprintf("field %s out of range: %d > 100", key, v))
	}
	return v, nil
}

// JSON uses the same externally tagged shape as the query encoding:
// {"src":"...","option":{"r":{"w":...,"h":...,"q":...}}}.

type resizeJSON struct {
	Width   uint32 `json:"w"`
	Height  uint32 `json:"h"`
	Quality uint8  `json:"q"`
}

type blurJSON struct {
	Width     uint32 `json:"w"`
	Height    uint32 `json:"h"`
	SVGWidth  uint32 `json:"sw"`
	SVGHeight uint32 `json:"sh"`
	Sigma     uint8  `json:"s"`
}

type optionJSON struct {
	Resize *resizeJSON `json:"r,omitempty"`
	Blur   *blurJSON   `json:"b,omitempty"`
}

type descriptorJSON struct {
	Src    string     `json:"src"`
	Option optionJSON `json:"option"`
}

func (d Descriptor) MarshalJSON() ([]byte, error) {
	doc := descriptorJSON{Src: d.Src}
	switch opt := d.Option.(type) {
	case Resize:
		doc.Option.Resize = &resizeJSON{Width: opt.Width, Height: opt.Height, Quality: opt.Quality}
	case Blur:
		doc.Option.Blur = &blurJSON{
			Width:     opt.Width,
			Height:    opt.Height,
			SVGWidth:  opt.SVGWidth,
			SVGHeight: opt.SVGHeight,
			Sigma:     opt.Sigma,
		}
	default:
		return nil, errors.New(errors.KindDecode, "marshal-json", fmt.Sprintf("unknown image option %T", d.Option))
	}
	return json.Marshal(doc)
}

func (d *Descriptor) UnmarshalJSON(data []byte) error {
	const op = "unmarshal-json"

	var doc descriptorJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(errors.KindDecode, op, "malformed descriptor document", err)
	}
	if doc.Src == "" {
		return errors.New(errors.KindDecode, op, "missing src")
	}

	switch {
	case doc.Option.Resize != nil && doc.Option.Blur != nil:
		return errors.New(errors.KindDecode, op, "ambiguous option: both variants present")
	case doc.Option.Resize != nil:
		r := doc.Option.Resize
		if r.Quality > 100 {
			return errors.New(errors.KindDecode, op, fmt.Sprintf("quality out of range: %d > 100", r.Quality))
		}
		d.Src = doc.Src
		d.Option = Resize{Width: r.Width, Height: r.Height, Quality: r.Quality}
		return nil
	case doc.Option.Blur != nil:
		b := doc.Option.Blur
		d.Src = doc.Src
		d.Option = Blur{
			Width:     b.Width,
			Height:    b.Height,
			SVGWidth:  b.SVGWidth,
			SVGHeight: b.SVGHeight,
			Sigma:     b.Sigma,
		}
		return nil
	default:
		return errors.New(errors.KindDecode, op, "missing option variant")
	}
}
