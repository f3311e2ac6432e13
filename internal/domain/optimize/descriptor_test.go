package optimize_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sstepanchuk/leptos-image/internal/domain/optimize"
	"github.com/sstepanchuk/leptos-image/internal/platform/errors"
)

func TestEncodeQuery_Canonical(t *testing.T) {
	resize := optimize.Descriptor{
		Src:    "examples/img.jpg",
		Option: optimize.Resize{Width: 100, Height: 100, Quality: 75},
	}
	assert.Equal(t,
		"src=examples%2Fimg.jpg&option[r][w]=100&option[r][h]=100&option[r][q]=75",
		resize.EncodeQuery())

	blur := optimize.Descriptor{
		Src:    "examples/img.jpg",
		Option: optimize.Blur{Width: 20, Height: 20, SVGWidth: 100, SVGHeight: 100, Sigma: 15},
	}
	assert.Equal(t,
		"src=examples%2Fimg.jpg&option[b][w]=20&option[b][h]=20&option[b][sw]=100&option[b][sh]=100&option[b][s]=15",
		blur.EncodeQuery())
}

func TestEncodeQuery_Deterministic(t *testing.T) {
	d := optimize.Descriptor{
		Src:    "photo.png",
		Option: optimize.Resize{Width: 640, Height: 480, Quality: 80},
	}
	assert.Equal(t, d.EncodeQuery(), d.EncodeQuery())
}

func TestDecodeQuery_RoundTrip(t *testing.T) {
	descriptors := []optimize.Descriptor{
		{
			Src:    "examples/img.jpg",
			Option: optimize.Resize{Width: 100, Height: 100, Quality: 75},
		},
		{
			Src:    "nested/dir/photo.png",
			Option: optimize.Blur{Width: 25, Height: 25, SVGWidth: 100, SVGHeight: 100, Sigma: 20},
		},
		{
			Src:    "img with spaces.jpeg",
			Option: optimize.Resize{Width: 1, Height: 1, Quality: 0},
		},
	}

	for _, want := range descriptors {
		got, err := optimize.DecodeQuery(want.EncodeQuery())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeQuery_AcceptsFullURL(t *testing.T) {
	want := optimize.Descriptor{
		Src:    "examples/img.jpg",
		Option: optimize.Resize{Width: 100, Height: 100, Quality: 75},
	}

	got, err := optimize.DecodeQuery("http://localhost:8080" + want.URLPath("/cache/image"))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Only the portion after the last '?' counts.
	got, err = optimize.DecodeQuery("/weird?path?" + want.EncodeQuery())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeQuery_AcceptsEscapedBrackets(t *testing.T) {
	want := optimize.Descriptor{
		Src:    "img.jpg",
		Option: optimize.Resize{Width: 10, Height: 20, Quality: 30},
	}

	escaped := "src=img.jpg&option%5Br%5D%5Bw%5D=10&option%5Br%5D%5Bh%5D=20&option%5Br%5D%5Bq%5D=30"
	got, err := optimize.DecodeQuery(escaped)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeQuery_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"garbage", "definitely-not-a-descriptor"},
		{"empty", ""},
		{"missing src", "option[r][w]=100&option[r][h]=100&option[r][q]=75"},
		{"empty src", "src=&option[r][w]=100&option[r][h]=100&option[r][q]=75"},
		{"missing option", "src=img.jpg"},
		{"incomplete resize", "src=img.jpg&option[r][w]=100"},
		{"non-numeric field", "src=img.jpg&option[r][w]=abc&option[r][h]=100&option[r][q]=75"},
		{"negative field", "src=img.jpg&option[r][w]=-1&option[r][h]=100&option[r][q]=75"},
		{"quality above 100", "src=img.jpg&option[r][w]=100&option[r][h]=100&option[r][q]=101"},
		{"sigma above u8", "src=img.jpg&option[b][w]=20&option[b][h]=20&option[b][sw]=100&option[b][sh]=100&option[b][s]=256"},
		{
			"both variants",
			"src=img.jpg&option[r][w]=1&option[r][h]=1&option[r][q]=1&option[b][w]=1&option[b][h]=1&option[b][sw]=1&option[b][sh]=1&option[b][s]=1",
		},
		{"invalid percent encoding", "src=img.jpg%ZZ&option[r][w]=1&option[r][h]=1&option[r][q]=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := optimize.DecodeQuery(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindDecode), "expected decode kind, got %v", err)
		})
	}
}

func TestDecodeQuery_SigmaFullRange(t *testing.T) {
	// Sigma is a plain u8; only quality carries the 0-100 ceiling.
	got, err := optimize.DecodeQuery(
		"src=img.jpg&option[b][w]=20&option[b][h]=20&option[b][sw]=100&option[b][sh]=100&option[b][s]=255")
	require.NoError(t, err)
	assert.Equal(t, optimize.Blur{Width: 20, Height: 20, SVGWidth: 100, SVGHeight: 100, Sigma: 255}, got.Option)
}

func TestPathToken_RoundTrip(t *testing.T) {
	want := optimize.Descriptor{
		Src:    "examples/img.jpg",
		Option: optimize.Blur{Width: 20, Height: 20, SVGWidth: 100, SVGHeight: 100, Sigma: 15},
	}

	token := want.PathToken()
	assert.NotContains(t, token, "/", "path token must stay a single segment")

	got, err := optimize.DescriptorFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPathToken_IsURLSafeBase64OfQuery(t *testing.T) {
	d := optimize.Descriptor{
		Src:    "examples/img.jpg",
		Option: optimize.Resize{Width: 100, Height: 100, Quality: 75},
	}

	const goldenQuery = "src=examples%2Fimg.jpg&option[r][w]=100&option[r][h]=100&option[r][q]=75"
	assert.Equal(t, base64.URLEncoding.EncodeToString([]byte(goldenQuery)), d.PathToken())
}

func TestDescriptorFromToken_Invalid(t *testing.T) {
	_, err := optimize.DescriptorFromToken("not base64 at all!!!")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindDecode))
}

func TestURLPath(t *testing.T) {
	d := optimize.Descriptor{
		Src:    "img.jpg",
		Option: optimize.Resize{Width: 10, Height: 10, Quality: 75},
	}
	assert.Equal(t,
		"/cache/image?src=img.jpg&option[r][w]=10&option[r][h]=10&option[r][q]=75",
		d.URLPath("/cache/image"))
}

func TestDescriptorJSON_RoundTrip(t *testing.T) {
	resize := optimize.Descriptor{
		Src:    "examples/img.jpg",
		Option: optimize.Resize{Width: 100, Height: 100, Quality: 75},
	}

	data, err := json.Marshal(resize)
	require.NoError(t, err)
	assert.JSONEq(t, `{"src":"examples/img.jpg","option":{"r":{"w":100,"h":100,"q":75}}}`, string(data))

	var got optimize.Descriptor
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, resize, got)

	blur := optimize.Descriptor{
		Src:    "photo.png",
		Option: optimize.Blur{Width: 25, Height: 25, SVGWidth: 100, SVGHeight: 100, Sigma: 20},
	}

	data, err = json.Marshal(blur)
	require.NoError(t, err)
	assert.JSONEq(t, `{"src":"photo.png","option":{"b":{"w":25,"h":25,"sw":100,"sh":100,"s":20}}}`, string(data))

	var gotBlur optimize.Descriptor
	require.NoError(t, json.Unmarshal(data, &gotBlur))
	assert.Equal(t, blur, gotBlur)
}

func TestDescriptorJSON_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing option", `{"src":"img.jpg","option":{}}`},
		{"missing src", `{"option":{"r":{"w":1,"h":1,"q":1}}}`},
		{"both variants", `{"src":"img.jpg","option":{"r":{"w":1,"h":1,"q":1},"b":{"w":1,"h":1,"sw":1,"sh":1,"s":1}}}`},
		{"quality above 100", `{"src":"img.jpg","option":{"r":{"w":1,"h":1,"q":101}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d optimize.Descriptor
			err := json.Unmarshal([]byte(tt.doc), &d)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindDecode))
		})
	}
}

func TestDescriptor_Comparable(t *testing.T) {
	a := optimize.Descriptor{Src: "img.jpg", Option: optimize.Resize{Width: 1, Height: 2, Quality: 3}}
	b := optimize.Descriptor{Src: "img.jpg", Option: optimize.Resize{Width: 1, Height: 2, Quality: 3}}
	c := optimize.Descriptor{Src: "img.jpg", Option: optimize.Resize{Width: 1, Height: 2, Quality: 4}}

	assert.True(t, a == b)
	assert.False(t, a == c)

	// Descriptors are used as map keys by callers; both variants must
	// hash structurally.
	seen := map[optimize.Descriptor]int{a: 1}
	seen[b]++
	assert.Equal(t, 2, seen[a])
}
