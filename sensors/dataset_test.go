package sensors

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}

	return path
}

func TestReadImu(t *testing.T) {
	assert := assert.New(t)

	// columns deliberately shuffled, rows out of order, one row malformed
	data := `acc_x, acc_y, acc_z, t, ang_x, ang_y, ang_z
0.4, 0.5, 9.6, 0.02, 0.01, 0.02, 0.03
0.1, 0.2, 9.8, 0.01, -0.01, 0.00, 0.02
bad, 0.0, 0.0, 0.03, 0.0, 0.0, 0.0
0.7, 0.8, 9.7, 0.00, 0.02, -0.02, 0.01
`
	path := writeFile(t, "imu.csv", data)

	p := NewDataParser()
	out, err := p.ReadImu(path)
	assert.NoError(err)
	assert.Len(out, 3)

	// sorted by timestamp
	assert.InDelta(0.00, out[0].Timestamp, 1e-15)
	assert.InDelta(0.01, out[1].Timestamp, 1e-15)
	assert.InDelta(0.02, out[2].Timestamp, 1e-15)

	// column mapping resolved from the header
	assert.InDelta(-0.01, out[1].Gyro.AtVec(0), 1e-15)
	assert.InDelta(9.8, out[1].Acc.AtVec(2), 1e-15)
}

func TestReadImuTimeOffset(t *testing.T) {
	assert := assert.New(t)

	data := "t,ang_x,ang_y,ang_z,acc_x,acc_y,acc_z\n1.0,0,0,0,0,0,9.8\n"
	path := writeFile(t, "imu.csv", data)

	p := NewDataParser()
	p.TimeOffset = 0.5
	out, err := p.ReadImu(path)
	assert.NoError(err)
	assert.Len(out, 1)
	assert.InDelta(1.5, out[0].Timestamp, 1e-15)
}

func TestReadImuMissingTitle(t *testing.T) {
	assert := assert.New(t)

	data := "t,wx,wy,wz,ax,ay,az\n0,0,0,0,0,0,0\n"
	path := writeFile(t, "imu.csv", data)

	_, err := NewDataParser().ReadImu(path)
	assert.Error(err)

	_, err = NewDataParser().ReadImu(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(err)
}

func TestReadGroundtruth(t *testing.T) {
	assert := assert.New(t)

	data := `t,q_x,q_y,q_z,q_w,p_x,p_y,p_z,v_x,v_y,v_z,bw_x,bw_y,bw_z,ba_x,ba_y,ba_z
0.1,0,0,0,1,1,2,3,0.1,0.2,0.3,0.01,0.02,0.03,0.04,0.05,0.06
0.0,0,0,0,1,4,5,6,0,0,0,0,0,0,0,0,0
`
	path := writeFile(t, "gt.csv", data)

	out, err := NewDataParser().ReadGroundtruth(path)
	assert.NoError(err)
	assert.Len(out, 2)

	assert.InDelta(0.0, out[0].Timestamp, 1e-15)
	assert.InDelta(4.0, out[0].P.AtVec(0), 1e-15)
	assert.InDelta(0.3, out[1].V.AtVec(2), 1e-15)
	assert.InDelta(0.02, out[1].Bw.AtVec(1), 1e-15)
	assert.InDelta(0.06, out[1].Ba.AtVec(2), 1e-15)

	// identity quaternion
	w := out[0].Q.Log()
	for i := 0; i < 3; i++ {
		assert.InDelta(0.0, w.AtVec(i), 1e-15)
	}
}

func TestReadGroundtruthPoseOnly(t *testing.T) {
	assert := assert.New(t)

	data := "t,q_x,q_y,q_z,q_w,p_x,p_y,p_z\n0.0,0,0,0,1,1,1,1\n"
	path := writeFile(t, "gt.csv", data)

	p := NewDataParser()
	p.GroundtruthTitles = DefaultGroundtruthTitles[:8]
	out, err := p.ReadGroundtruth(path)
	assert.NoError(err)
	assert.Len(out, 1)

	// missing blocks are zero
	for i := 0; i < 3; i++ {
		assert.InDelta(0.0, out[0].V.AtVec(i), 1e-15)
		assert.InDelta(0.0, out[0].Bw.AtVec(i), 1e-15)
		assert.InDelta(0.0, out[0].Ba.AtVec(i), 1e-15)
	}

	p.GroundtruthTitles = DefaultGroundtruthTitles[:9]
	_, err = p.ReadGroundtruth(path)
	assert.Error(err)
}
