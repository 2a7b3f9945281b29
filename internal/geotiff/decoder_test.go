package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/PaSeidel/covid-no2-viewer/internal/models"
)

// tiffSpec describes a synthetic single-band GeoTIFF for tests.
type tiffSpec struct {
	width, height int
	values        []float32
	order         binary.ByteOrder
	deflate       bool
	noData        string
	originLng     float64
	originLat     float64
	scaleX        float64
	scaleY        float64
}

func defaultSpec(width, height int, values []float32) tiffSpec {
	return tiffSpec{
		width:     width,
		height:    height,
		values:    values,
		order:     binary.LittleEndian,
		noData:    "-9999",
		originLng: 5.8663,
		originLat: 55.0992,
		scaleX:    0.05,
		scaleY:    0.05,
	}
}

// buildTIFF assembles a minimal strip-organized float32 GeoTIFF.
func buildTIFF(t *testing.T, spec tiffSpec) []byte {
	t.Helper()

	band := &bytes.Buffer{}
	for _, v := range spec.values {
		if err := binary.Write(band, spec.order, math.Float32bits(v)); err != nil {
			t.Fatalf("write sample: %v", err)
		}
	}
	stripData := band.Bytes()
	compression := uint16(1)
	if spec.deflate {
		var zbuf bytes.Buffer
		zw := zlib.NewWriter(&zbuf)
		zw.Write(stripData)
		zw.Close()
		stripData = zbuf.Bytes()
		compression = 8
	}

	type entry struct {
		tag, typ uint16
		count    uint32
		value    []byte // inline (<=4 bytes) or external payload
		inline   bool
	}

	u16 := func(v uint16) []byte {
		b := make([]byte, 4)
		spec.order.PutUint16(b, v)
		return b
	}
	u32 := func(v uint32) []byte {
		b := make([]byte, 4)
		spec.order.PutUint32(b, v)
		return b
	}
	doubles := func(vals ...float64) []byte {
		b := &bytes.Buffer{}
		for _, v := range vals {
			binary.Write(b, spec.order, math.Float64bits(v))
		}
		return b.Bytes()
	}

	entries := []entry{
		{tag: 256, typ: 3, count: 1, value: u16(uint16(spec.width)), inline: true},
		{tag: 257, typ: 3, count: 1, value: u16(uint16(spec.height)), inline: true},
		{tag: 258, typ: 3, count: 1, value: u16(32), inline: true},
		{tag: 259, typ: 3, count: 1, value: u16(compression), inline: true},
		{tag: 273, typ: 4, count: 1, value: nil}, // patched below
		{tag: 277, typ: 3, count: 1, value: u16(1), inline: true},
		{tag: 278, typ: 3, count: 1, value: u16(uint16(spec.height)), inline: true},
		{tag: 279, typ: 4, count: 1, value: u32(uint32(len(stripData))), inline: true},
		{tag: 339, typ: 3, count: 1, value: u16(3), inline: true},
		{tag: 33550, typ: 12, count: 3, value: doubles(spec.scaleX, spec.scaleY, 0)},
		{tag: 33922, typ: 12, count: 6, value: doubles(0, 0, 0, spec.originLng, spec.originLat, 0)},
	}
	if spec.noData != "" {
		nd := append([]byte(spec.noData), 0)
		entries = append(entries, entry{tag: 42113, typ: 2, count: uint32(len(nd)), value: nd, inline: len(nd) <= 4})
	}

	// Layout: header(8) + IFD + external values + strip data.
	ifdSize := 2 + len(entries)*12 + 4
	external := &bytes.Buffer{}
	offsets := make(map[int]uint32) // entry index -> external offset
	base := uint32(8 + ifdSize)
	for i, e := range entries {
		if !e.inline && e.value != nil {
			offsets[i] = base + uint32(external.Len())
			external.Write(e.value)
		}
	}
	stripOffset := base + uint32(external.Len())

	out := &bytes.Buffer{}
	if spec.order == binary.LittleEndian {
		out.WriteString("II")
	} else {
		out.WriteString("MM")
	}
	binary.Write(out, spec.order, uint16(42))
	binary.Write(out, spec.order, uint32(8))

	binary.Write(out, spec.order, uint16(len(entries)))
	for i, e := range entries {
		binary.Write(out, spec.order, e.tag)
		binary.Write(out, spec.order, e.typ)
		binary.Write(out, spec.order, e.count)
		switch {
		case e.tag == 273:
			binary.Write(out, spec.order, stripOffset)
		case e.inline:
			v := make([]byte, 4)
			copy(v, e.value)
			out.Write(v)
		default:
			binary.Write(out, spec.order, offsets[i])
		}
	}
	binary.Write(out, spec.order, uint32(0)) // no next IFD
	out.Write(external.Bytes())
	out.Write(stripData)
	return out.Bytes()
}

func TestDecodeBasic(t *testing.T) {
	values := []float32{1, 2, 3, 4, 5, 6}
	data := buildTIFF(t, defaultSpec(3, 2, values))

	meta, grid, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if meta.Width != 3 || meta.Height != 2 {
		t.Errorf("Expected 3x2, got %dx%d", meta.Width, meta.Height)
	}
	if grid.Type != models.SampleFloat32 {
		t.Errorf("Expected float32 band, got %s", grid.Type)
	}
	for i, want := range values {
		if got := grid.At(i); got != float64(want) {
			t.Errorf("At(%d) = %v, want %v", i, got, want)
		}
	}
	if grid.NoData != -9999 {
		t.Errorf("Expected no-data -9999, got %v", grid.NoData)
	}

	if meta.OriginLng != 5.8663 || meta.OriginLat != 55.0992 {
		t.Errorf("Unexpected origin (%v, %v)", meta.OriginLng, meta.OriginLat)
	}
	wantMaxLng := 5.8663 + 3*0.05
	wantMinLat := 55.0992 - 2*0.05
	if math.Abs(meta.MaxLng-wantMaxLng) > 1e-9 || math.Abs(meta.MinLat-wantMinLat) > 1e-9 {
		t.Errorf("Unexpected bbox: (%v..%v, %v..%v)", meta.MinLng, meta.MaxLng, meta.MinLat, meta.MaxLat)
	}
}

func TestDecodeBigEndian(t *testing.T) {
	spec := defaultSpec(2, 2, []float32{10, 20, 30, 40})
	spec.order = binary.BigEndian
	data := buildTIFF(t, spec)

	_, grid, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := grid.AtXY(1, 1); got != 40 {
		t.Errorf("AtXY(1,1) = %v, want 40", got)
	}
}

func TestDecodeDeflate(t *testing.T) {
	spec := defaultSpec(4, 4, make([]float32, 16))
	for i := range spec.values {
		spec.values[i] = float32(i)
	}
	spec.deflate = true
	data := buildTIFF(t, spec)

	_, grid, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := grid.At(15); got != 15 {
		t.Errorf("At(15) = %v, want 15", got)
	}
}

func TestDecodeCustomNoData(t *testing.T) {
	spec := defaultSpec(1, 1, []float32{-1})
	spec.noData = "-1"
	data := buildTIFF(t, spec)

	_, grid, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if grid.NoData != -1 {
		t.Errorf("Expected no-data -1, got %v", grid.NoData)
	}
	if !grid.IsNoData(grid.At(0)) {
		t.Error("Sentinel value not recognized as no-data")
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated header", data: []byte("II")},
		{name: "bad byte order", data: []byte("XXXXXXXXXX")},
		{name: "bad magic", data: []byte{'I', 'I', 99, 0, 8, 0, 0, 0}},
		{name: "IFD out of range", data: []byte{'I', 'I', 42, 0, 0xFF, 0xFF, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.data)
			if err == nil {
				t.Fatal("Expected decode error, got nil")
			}
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("Expected *DecodeError, got %T: %v", err, err)
			}
		})
	}
}

func TestDecodeTruncatedBand(t *testing.T) {
	data := buildTIFF(t, defaultSpec(2, 2, []float32{1, 2, 3, 4}))
	data = data[:len(data)-8]

	_, _, err := Decode(data)
	if err == nil {
		t.Fatal("Expected decode error for truncated band")
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("Expected *DecodeError, got %T", err)
	}
}

func TestPixelGeoRoundTrip(t *testing.T) {
	data := buildTIFF(t, defaultSpec(8, 6, make([]float32, 48)))
	meta, _, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	for y := 0; y < meta.Height; y++ {
		for x := 0; x < meta.Width; x++ {
			lat, lng := meta.PixelToGeo(x, y)
			gotX, gotY := meta.GeoToPixel(lat, lng)
			if dx := math.Abs(float64(gotX - x)); dx > 1 {
				t.Fatalf("x round-trip off by %v at (%d,%d)", dx, x, y)
			}
			if dy := math.Abs(float64(gotY - y)); dy > 1 {
				t.Fatalf("y round-trip off by %v at (%d,%d)", dy, x, y)
			}
		}
	}
}
