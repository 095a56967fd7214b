// Package markers reads and writes marker files: CSV rows of id, lng, lat
// and optional attributes, either plain or zstd compressed.
package markers

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/edsrzf/mmap-go"
	"github.com/gocarina/gocsv"
	"github.com/klauspost/compress/zstd"

	"web/markercluster/cluster"
)

// ErrUnknownFormat is returned for files that are neither .csv nor .csv.zst.
var ErrUnknownFormat = errors.New("unknown marker file format")

// DefaultMmapThreshold is the size from which plain files are memory mapped.
const DefaultMmapThreshold = 8 << 20

// Row is one line of a marker file.
type Row struct {
	ID        uint32  `csv:"id"`
	Lng       float64 `csv:"lng"`
	Lat       float64 `csv:"lat"`
	Value     float32 `csv:"value,omitempty"`
	Category  string  `csv:"category,omitempty"`
	Timestamp string  `csv:"timestamp,omitempty"`
}

// Options controls how files are read.
type Options struct {
	// MmapThreshold is the plain file size from which the file is memory
	// mapped instead of streamed. Zero uses DefaultMmapThreshold; a
	// negative value disables mapping.
	MmapThreshold int64
}

type format int

const (
	formatCSV format = iota
	formatZstd
)

func detect(path string) (format, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".csv.zst"), strings.HasSuffix(lower, ".csv.zstd"):
		return formatZstd, nil
	case strings.HasSuffix(lower, ".csv"):
		return formatCSV, nil
	}
	return 0, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
}

// Load reads every marker in the file at path.
func Load(path string, opts Options) ([]cluster.Point, error) {
	f, err := detect(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open marker file: %w", err)
	}
	defer file.Close()

	switch f {
	case formatZstd:
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer dec.Close()
		return Decode(dec)
	}

	threshold := opts.MmapThreshold
	if threshold == 0 {
		threshold = DefaultMmapThreshold
	}
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat marker file: %w", err)
	}
	if threshold > 0 && info.Size() > 0 && info.Size() >= threshold {
		return loadMapped(file)
	}
	return Decode(bufio.NewReaderSize(file, 1<<20))
}

func loadMapped(file *os.File) ([]cluster.Point, error) {
	data, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to map marker file: %w", err)
	}
	defer data.Unmap()

	var rows []Row
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode markers: %w", err)
	}
	return ToPoints(rows), nil
}

// Decode reads CSV marker rows from r.
func Decode(r io.Reader) ([]cluster.Point, error) {
	var rows []Row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode markers: %w", err)
	}
	return ToPoints(rows), nil
}

// ToPoints converts rows to points. A row's value becomes the "value"
// metric and its category and timestamp become metadata.
func ToPoints(rows []Row) []cluster.Point {
	points := make([]cluster.Point, len(rows))
	for i, row := range rows {
		p := cluster.Point{
			ID:      row.ID,
			X:       row.Lng,
			Y:       row.Lat,
			Metrics: map[string]float32{"value": row.Value},
		}
		if row.Category != "" || row.Timestamp != "" {
			p.Metadata = make(map[string]interface{}, 2)
			if row.Category != "" {
				p.Metadata["category"] = row.Category
			}
			if row.Timestamp != "" {
				p.Metadata["timestamp"] = row.Timestamp
			}
		}
		points[i] = p
	}
	return points
}

// FromPoints is the reverse of ToPoints. Metrics other than "value" and
// metadata other than category and timestamp are not kept.
func FromPoints(points []cluster.Point) []Row {
	rows := make([]Row, len(points))
	for i, p := range points {
		row := Row{ID: p.ID, Lng: p.X, Lat: p.Y, Value: p.Metrics["value"]}
		if s, ok := p.Metadata["category"].(string); ok {
			row.Category = s
		}
		if s, ok := p.Metadata["timestamp"].(string); ok {
			row.Timestamp = s
		}
		rows[i] = row
	}
	return rows
}

// Save writes points to path in the format its extension names.
func Save(path string, points []cluster.Point) error {
	f, err := detect(path)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create marker file: %w", err)
	}
	defer file.Close()

	bufWriter := bufio.NewWriterSize(file, 1<<20)
	var w io.Writer = bufWriter

	var enc *zstd.Encoder
	if f == formatZstd {
		enc, err = zstd.NewWriter(bufWriter, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		w = enc
	}

	if err := gocsv.Marshal(FromPoints(points), w); err != nil {
		if enc != nil {
			enc.Close()
		}
		return fmt.Errorf("failed to encode markers: %w", err)
	}

	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to close encoder: %w", err)
		}
	}
	if err := bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	return file.Close()
}
