// Package geotiff decodes the single-band GeoTIFF rasters produced by the
// NO2 data preparation pipeline into a typed numeric grid plus geographic
// metadata. The parse is pure: no I/O, no shared state.
package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/PaSeidel/covid-no2-viewer/internal/models"
)

// TIFF field types we care about.
const (
	typeByte   = 1
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeSByte  = 6
	typeSShort = 8
	typeSLong  = 9
	typeFloat  = 11
	typeDouble = 12
)

// Tags used by the decoder. The Model* and GDAL_NODATA tags are the
// GeoTIFF extensions the download pipeline writes alongside the band.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPredictor       = 317
	tagTileWidth       = 322
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGDALNoData      = 42113
)

const (
	compressionNone       = 1
	compressionDeflate    = 8
	compressionDeflateOld = 32946
)

const (
	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3
)

// DecodeError reports a malformed or unsupported raster payload. Callers
// treat the affected period as unavailable rather than failing the app.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geotiff decode: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("geotiff decode: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErrf(format string, args ...interface{}) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// ifdEntry is one directory entry of the first image file directory.
type ifdEntry struct {
	tag      uint16
	fieldTyp uint16
	count    uint32
	valueOff uint32
	raw      []byte // the 4 value/offset bytes as stored
}

type parser struct {
	data  []byte
	order binary.ByteOrder
}

// Decode parses raw GeoTIFF bytes into georeferencing metadata and a
// typed single-band grid.
func Decode(data []byte) (*models.RasterMetadata, *models.RasterGrid, error) {
	if len(data) < 8 {
		return nil, nil, decodeErrf("truncated header (%d bytes)", len(data))
	}

	p := &parser{data: data}
	switch {
	case data[0] == 'I' && data[1] == 'I':
		p.order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		p.order = binary.BigEndian
	default:
		return nil, nil, decodeErrf("not a TIFF file (bad byte order mark %q)", data[:2])
	}
	if p.order.Uint16(data[2:4]) != 42 {
		return nil, nil, decodeErrf("not a TIFF file (bad magic)")
	}

	ifdOffset := p.order.Uint32(data[4:8])
	entries, err := p.readIFD(ifdOffset)
	if err != nil {
		return nil, nil, err
	}

	meta, grid, err := p.assemble(entries)
	if err != nil {
		return nil, nil, err
	}
	return meta, grid, nil
}

func (p *parser) readIFD(offset uint32) (map[uint16]ifdEntry, error) {
	if int(offset)+2 > len(p.data) {
		return nil, decodeErrf("IFD offset %d out of range", offset)
	}
	count := int(p.order.Uint16(p.data[offset : offset+2]))
	base := int(offset) + 2
	if base+count*12 > len(p.data) {
		return nil, decodeErrf("IFD with %d entries overflows file", count)
	}

	entries := make(map[uint16]ifdEntry, count)
	for i := 0; i < count; i++ {
		e := p.data[base+i*12 : base+(i+1)*12]
		entry := ifdEntry{
			tag:      p.order.Uint16(e[0:2]),
			fieldTyp: p.order.Uint16(e[2:4]),
			count:    p.order.Uint32(e[4:8]),
			valueOff: p.order.Uint32(e[8:12]),
			raw:      e[8:12],
		}
		entries[entry.tag] = entry
	}
	return entries, nil
}

func fieldSize(typ uint16) int {
	switch typ {
	case typeByte, typeASCII, typeSByte:
		return 1
	case typeShort, typeSShort:
		return 2
	case typeLong, typeSLong, typeFloat:
		return 4
	case typeDouble:
		return 8
	default:
		return 0
	}
}

// valueBytes returns the raw value bytes of an entry, following the
// offset indirection when the value does not fit inline.
func (p *parser) valueBytes(e ifdEntry) ([]byte, error) {
	size := fieldSize(e.fieldTyp)
	if size == 0 {
		return nil, decodeErrf("tag %d has unsupported field type %d", e.tag, e.fieldTyp)
	}
	total := size * int(e.count)
	if total <= 4 {
		return e.raw[:total], nil
	}
	start := int(e.valueOff)
	if start+total > len(p.data) {
		return nil, decodeErrf("tag %d value (%d bytes at %d) out of range", e.tag, total, start)
	}
	return p.data[start : start+total], nil
}

// uintValues decodes an entry holding SHORT or LONG values.
func (p *parser) uintValues(e ifdEntry) ([]uint32, error) {
	raw, err := p.valueBytes(e)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, e.count)
	switch e.fieldTyp {
	case typeShort:
		for i := range out {
			out[i] = uint32(p.order.Uint16(raw[i*2 : i*2+2]))
		}
	case typeLong:
		for i := range out {
			out[i] = p.order.Uint32(raw[i*4 : i*4+4])
		}
	default:
		return nil, decodeErrf("tag %d: expected SHORT or LONG, got type %d", e.tag, e.fieldTyp)
	}
	return out, nil
}

func (p *parser) doubleValues(e ifdEntry) ([]float64, error) {
	if e.fieldTyp != typeDouble {
		return nil, decodeErrf("tag %d: expected DOUBLE, got type %d", e.tag, e.fieldTyp)
	}
	raw, err := p.valueBytes(e)
	if err != nil {
		return nil, err
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(p.order.Uint64(raw[i*8 : i*8+8]))
	}
	return out, nil
}

func (p *parser) asciiValue(e ifdEntry) (string, error) {
	if e.fieldTyp != typeASCII {
		return "", decodeErrf("tag %d: expected ASCII, got type %d", e.tag, e.fieldTyp)
	}
	raw, err := p.valueBytes(e)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(raw), "\x00"), nil
}

func (p *parser) firstUint(entries map[uint16]ifdEntry, tag uint16, def uint32) (uint32, error) {
	e, ok := entries[tag]
	if !ok {
		return def, nil
	}
	vals, err := p.uintValues(e)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return def, nil
	}
	return vals[0], nil
}

func (p *parser) assemble(entries map[uint16]ifdEntry) (*models.RasterMetadata, *models.RasterGrid, error) {
	if _, tiled := entries[tagTileWidth]; tiled {
		return nil, nil, decodeErrf("tiled TIFFs are not supported")
	}

	width, err := p.firstUint(entries, tagImageWidth, 0)
	if err != nil {
		return nil, nil, err
	}
	height, err := p.firstUint(entries, tagImageLength, 0)
	if err != nil {
		return nil, nil, err
	}
	if width == 0 || height == 0 {
		return nil, nil, decodeErrf("invalid dimensions %dx%d", width, height)
	}

	samplesPerPixel, err := p.firstUint(entries, tagSamplesPerPixel, 1)
	if err != nil {
		return nil, nil, err
	}
	if samplesPerPixel != 1 {
		return nil, nil, decodeErrf("expected a single band, got %d samples per pixel", samplesPerPixel)
	}

	bits, err := p.firstUint(entries, tagBitsPerSample, 8)
	if err != nil {
		return nil, nil, err
	}
	format, err := p.firstUint(entries, tagSampleFormat, sampleFormatUint)
	if err != nil {
		return nil, nil, err
	}
	sampleType, err := resolveSampleType(bits, format)
	if err != nil {
		return nil, nil, err
	}

	compression, err := p.firstUint(entries, tagCompression, compressionNone)
	if err != nil {
		return nil, nil, err
	}
	predictor, err := p.firstUint(entries, tagPredictor, 1)
	if err != nil {
		return nil, nil, err
	}
	if predictor != 1 {
		return nil, nil, decodeErrf("predictor %d is not supported", predictor)
	}

	band, err := p.readStrips(entries, compression)
	if err != nil {
		return nil, nil, err
	}
	expected := int(width) * int(height) * int(bits) / 8
	if len(band) < expected {
		return nil, nil, decodeErrf("band data truncated: have %d bytes, need %d", len(band), expected)
	}
	band = band[:expected]

	meta, err := p.georeference(entries, int(width), int(height))
	if err != nil {
		return nil, nil, err
	}

	noData := models.NoDataValue
	if e, ok := entries[tagGDALNoData]; ok {
		if s, err := p.asciiValue(e); err == nil {
			if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				noData = v
			}
		}
	}

	grid := &models.RasterGrid{
		Width:  int(width),
		Height: int(height),
		Type:   sampleType,
		NoData: noData,
	}
	if err := p.fillBuffer(grid, band); err != nil {
		return nil, nil, err
	}
	return meta, grid, nil
}

func resolveSampleType(bits, format uint32) (models.SampleType, error) {
	switch format {
	case sampleFormatUint:
		switch bits {
		case 8:
			return models.SampleUint8, nil
		case 16:
			return models.SampleUint16, nil
		case 32:
			return models.SampleUint32, nil
		}
	case sampleFormatInt:
		switch bits {
		case 16:
			return models.SampleInt16, nil
		case 32:
			return models.SampleInt32, nil
		}
	case sampleFormatFloat:
		switch bits {
		case 32:
			return models.SampleFloat32, nil
		case 64:
			return models.SampleFloat64, nil
		}
	}
	return 0, decodeErrf("unsupported sample format %d with %d bits", format, bits)
}

// readStrips concatenates all strips into one contiguous band buffer,
// inflating deflate-compressed strips as needed.
func (p *parser) readStrips(entries map[uint16]ifdEntry, compression uint32) ([]byte, error) {
	offsetsEntry, ok := entries[tagStripOffsets]
	if !ok {
		return nil, decodeErrf("missing strip offsets")
	}
	countsEntry, ok := entries[tagStripByteCounts]
	if !ok {
		return nil, decodeErrf("missing strip byte counts")
	}
	offsets, err := p.uintValues(offsetsEntry)
	if err != nil {
		return nil, err
	}
	counts, err := p.uintValues(countsEntry)
	if err != nil {
		return nil, err
	}
	if len(offsets) != len(counts) {
		return nil, decodeErrf("strip offsets (%d) and byte counts (%d) disagree", len(offsets), len(counts))
	}

	var band bytes.Buffer
	for i := range offsets {
		start, n := int(offsets[i]), int(counts[i])
		if start+n > len(p.data) {
			return nil, decodeErrf("strip %d (%d bytes at %d) out of range", i, n, start)
		}
		strip := p.data[start : start+n]

		switch compression {
		case compressionNone:
			band.Write(strip)
		case compressionDeflate, compressionDeflateOld:
			zr, err := zlib.NewReader(bytes.NewReader(strip))
			if err != nil {
				return nil, &DecodeError{Reason: fmt.Sprintf("strip %d: bad deflate stream", i), Err: err}
			}
			if _, err := io.Copy(&band, zr); err != nil {
				zr.Close()
				return nil, &DecodeError{Reason: fmt.Sprintf("strip %d: inflate failed", i), Err: err}
			}
			zr.Close()
		default:
			return nil, decodeErrf("compression scheme %d is not supported", compression)
		}
	}
	return band.Bytes(), nil
}

// georeference derives bbox, pixel scale and origin from the GeoTIFF
// model tags. The tiepoint anchors raster (0,0) at the top-left corner.
func (p *parser) georeference(entries map[uint16]ifdEntry, width, height int) (*models.RasterMetadata, error) {
	scaleEntry, ok := entries[tagModelPixelScale]
	if !ok {
		return nil, decodeErrf("missing ModelPixelScale tag")
	}
	scale, err := p.doubleValues(scaleEntry)
	if err != nil {
		return nil, err
	}
	if len(scale) < 2 || scale[0] <= 0 || scale[1] <= 0 {
		return nil, decodeErrf("invalid pixel scale %v", scale)
	}

	tieEntry, ok := entries[tagModelTiepoint]
	if !ok {
		return nil, decodeErrf("missing ModelTiepoint tag")
	}
	tie, err := p.doubleValues(tieEntry)
	if err != nil {
		return nil, err
	}
	if len(tie) < 6 {
		return nil, decodeErrf("invalid tiepoint %v", tie)
	}
	// Tiepoint maps raster (I,J) to model (X,Y); the pipeline always
	// anchors at I=J=0.
	originLng := tie[3] - tie[0]*scale[0]
	originLat := tie[4] + tie[1]*scale[1]

	meta := &models.RasterMetadata{
		Width:     width,
		Height:    height,
		ScaleX:    scale[0],
		ScaleY:    scale[1],
		OriginLng: originLng,
		OriginLat: originLat,
		MinLng:    originLng,
		MaxLat:    originLat,
		MaxLng:    originLng + float64(width)*scale[0],
		MinLat:    originLat - float64(height)*scale[1],
	}
	return meta, nil
}

func (p *parser) fillBuffer(grid *models.RasterGrid, band []byte) error {
	n := grid.Len()
	switch grid.Type {
	case models.SampleUint8:
		grid.U8 = append([]uint8(nil), band[:n]...)
	case models.SampleInt16:
		grid.I16 = make([]int16, n)
		for i := 0; i < n; i++ {
			grid.I16[i] = int16(p.order.Uint16(band[i*2 : i*2+2]))
		}
	case models.SampleUint16:
		grid.U16 = make([]uint16, n)
		for i := 0; i < n; i++ {
			grid.U16[i] = p.order.Uint16(band[i*2 : i*2+2])
		}
	case models.SampleInt32:
		grid.I32 = make([]int32, n)
		for i := 0; i < n; i++ {
			grid.I32[i] = int32(p.order.Uint32(band[i*4 : i*4+4]))
		}
	case models.SampleUint32:
		grid.U32 = make([]uint32, n)
		for i := 0; i < n; i++ {
			grid.U32[i] = p.order.Uint32(band[i*4 : i*4+4])
		}
	case models.SampleFloat32:
		grid.F32 = make([]float32, n)
		for i := 0; i < n; i++ {
			grid.F32[i] = math.Float32frombits(p.order.Uint32(band[i*4 : i*4+4]))
		}
	case models.SampleFloat64:
		grid.F64 = make([]float64, n)
		for i := 0; i < n; i++ {
			grid.F64[i] = math.Float64frombits(p.order.Uint64(band[i*8 : i*8+8]))
		}
	default:
		return decodeErrf("unhandled sample type %v", grid.Type)
	}
	return nil
}
