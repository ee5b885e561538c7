package sensors

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/milosgajdos/go-msceqf/lie"
)

// Groundtruth is a single reference state record read from a dataset.
// Blocks missing from the dataset are zero.
type Groundtruth struct {
	// Timestamp is the record time in seconds
	Timestamp float64
	// Q is the body orientation
	Q *lie.SO3
	// P is the body position
	P *mat.VecDense
	// V is the body velocity
	V *mat.VecDense
	// Bw is the gyroscope bias
	Bw *mat.VecDense
	// Ba is the accelerometer bias
	Ba *mat.VecDense
}

// DefaultImuTitles are the expected IMU file header titles in order
// [t, ang_x, ang_y, ang_z, acc_x, acc_y, acc_z].
var DefaultImuTitles = []string{"t", "ang_x", "ang_y", "ang_z", "acc_x", "acc_y", "acc_z"}

// DefaultGroundtruthTitles are the expected groundtruth file header titles in
// order [t, q_x, q_y, q_z, q_w, p_x, p_y, p_z, v_x, v_y, v_z, bw_x, bw_y,
// bw_z, ba_x, ba_y, ba_z]. Shorter title lists drop trailing blocks: 11
// titles read pose only, 14 add velocity.
var DefaultGroundtruthTitles = []string{
	"t",
	"q_x", "q_y", "q_z", "q_w",
	"p_x", "p_y", "p_z",
	"v_x", "v_y", "v_z",
	"bw_x", "bw_y", "bw_z",
	"ba_x", "ba_y", "ba_z",
}

// DataParser reads IMU and groundtruth records from delimited dataset files.
// The column layout is resolved from the file header using the configured
// titles, so columns may appear in any file order. Records are returned
// sorted by timestamp and malformed rows are skipped.
type DataParser struct {
	// Comma is the field delimiter
	Comma rune
	// TimeOffset is added to every IMU timestamp
	TimeOffset float64
	// ImuTitles are the IMU file header titles
	ImuTitles []string
	// GroundtruthTitles are the groundtruth file header titles
	GroundtruthTitles []string
}

// NewDataParser creates a new DataParser with comma delimiter, zero time
// offset and the default header titles, and returns it.
func NewDataParser() *DataParser {
	return &DataParser{
		Comma:             ',',
		ImuTitles:         DefaultImuTitles,
		GroundtruthTitles: DefaultGroundtruthTitles,
	}
}

// ReadImu reads all IMU records from the file at the given path and returns
// them sorted by timestamp.
// It returns error if the file can not be read or its header does not carry
// every configured IMU title.
func (p *DataParser) ReadImu(path string) ([]*Imu, error) {
	if len(p.ImuTitles) != 7 {
		return nil, fmt.Errorf("invalid imu header titles: %v", p.ImuTitles)
	}

	rows, idx, err := p.read(path, p.ImuTitles)
	if err != nil {
		return nil, err
	}

	var data []*Imu
	for _, row := range rows {
		vals, ok := pick(row, idx)
		if !ok {
			continue
		}
		u, err := NewImu(vals[0]+p.TimeOffset, mat.NewVecDense(3, vals[1:4]), mat.NewVecDense(3, vals[4:7]))
		if err != nil {
			continue
		}
		data = append(data, u)
	}
	sort.Slice(data, func(i, j int) bool { return data[i].Timestamp < data[j].Timestamp })

	return data, nil
}

// ReadGroundtruth reads all groundtruth records from the file at the given
// path and returns them sorted by timestamp. Blocks not covered by the
// configured titles are zero.
// It returns error if the file can not be read, the title count does not
// match a known layout or the header does not carry every configured title.
func (p *DataParser) ReadGroundtruth(path string) ([]*Groundtruth, error) {
	n := len(p.GroundtruthTitles)
	if n != 8 && n != 11 && n != 14 && n != 17 {
		return nil, fmt.Errorf("invalid groundtruth header titles: %v", p.GroundtruthTitles)
	}

	rows, idx, err := p.read(path, p.GroundtruthTitles)
	if err != nil {
		return nil, err
	}

	var data []*Groundtruth
	for _, row := range rows {
		vals, ok := pick(row, idx)
		if !ok {
			continue
		}
		q, err := lie.NewSO3FromQuaternion(quat.Number{Real: vals[4], Imag: vals[1], Jmag: vals[2], Kmag: vals[3]})
		if err != nil {
			continue
		}
		gt := &Groundtruth{
			Timestamp: vals[0],
			Q:         q,
			P:         mat.NewVecDense(3, vals[5:8]),
			V:         mat.NewVecDense(3, nil),
			Bw:        mat.NewVecDense(3, nil),
			Ba:        mat.NewVecDense(3, nil),
		}
		if n >= 11 {
			gt.V = mat.NewVecDense(3, vals[8:11])
		}
		if n >= 14 {
			gt.Bw = mat.NewVecDense(3, vals[11:14])
		}
		if n == 17 {
			gt.Ba = mat.NewVecDense(3, vals[14:17])
		}
		data = append(data, gt)
	}
	sort.Slice(data, func(i, j int) bool { return data[i].Timestamp < data[j].Timestamp })

	return data, nil
}

// read loads every record from the file and resolves the column index of
// each title from the header row.
func (p *DataParser) read(path string, titles []string) ([][]string, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = p.Comma
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %v", err)
	}

	idx := make([]int, len(titles))
	for i, title := range titles {
		idx[i] = -1
		for j, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), title) {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, nil, fmt.Errorf("header title not found: %s", title)
		}
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		rows = append(rows, row)
	}

	return rows, idx, nil
}

// pick parses the indexed fields of a row into floats. It reports false when
// a field is missing or not numeric.
func pick(row []string, idx []int) ([]float64, bool) {
	vals := make([]float64, len(idx))
	for i, j := range idx {
		if j >= len(row) {
			return nil, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[j]), 64)
		if err != nil {
			return nil, false
		}
		vals[i] = v
	}

	return vals, true
}
