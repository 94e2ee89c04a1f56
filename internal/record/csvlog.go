package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"omega-ahrs/internal/ahrs"
	"omega-ahrs/internal/quat"
	"omega-ahrs/internal/sim"
)

// Log format: one comma-separated line per filter step.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored (the writer emits one header comment).
// - Time is seconds with 3 decimals, every other real uses 7 decimals.
// - The last column is the disturbance state name.
//
// Column order matches Header.
const Header = "# t,yaw,pitch,roll,yaw_hat,pitch_hat,roll_hat," +
	"bias_x,bias_y,bias_z,bias_x_hat,bias_y_hat,bias_z_hat," +
	"q0,q1,q2,q3,q0_hat,q1_hat,q2_hat,q3_hat," +
	"dist_x,dist_y,dist_z,e,state"

const numFields = 26

// Reader parses a CSV result log.
type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFile parses the log at path.
func ReadFile(path string) ([]sim.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

func (rr *Reader) ReadAll() ([]sim.Row, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	rows := make([]sim.Row, 0, 2048)
	line := 0
	for s.Scan() {
		line++
		text := strings.TrimSpace(s.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		row, err := parseRow(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func parseRow(text string) (sim.Row, error) {
	fields := strings.Split(text, ",")
	if len(fields) != numFields {
		return sim.Row{}, fmt.Errorf("invalid log line (want %d fields, got %d)", numFields, len(fields))
	}
	vals := make([]float64, numFields-1)
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		if err != nil {
			return sim.Row{}, fmt.Errorf("invalid value in column %d: %w", i+1, err)
		}
		vals[i] = v
	}
	state, err := ahrs.ParseDisturbanceState(fields[numFields-1])
	if err != nil {
		return sim.Row{}, err
	}
	if vals[0] < 0 {
		return sim.Row{}, fmt.Errorf("invalid time (negative): %v", vals[0])
	}

	vec := func(i int) quat.Vec3 { return quat.Vec3{vals[i], vals[i+1], vals[i+2]} }
	eul := func(i int) quat.Euler { return quat.Euler{Yaw: vals[i], Pitch: vals[i+1], Roll: vals[i+2]} }
	q := func(i int) quat.Quat { return quat.Quat{W: vals[i], V: vec(i + 1)} }

	return sim.Row{
		Time:        time.Duration(math.Round(vals[0]*1e3)) * time.Millisecond,
		TrueEuler:   eul(1),
		EstEuler:    eul(4),
		TrueBias:    vec(7),
		EstBias:     vec(10),
		TrueQuat:    q(13),
		EstQuat:     q(17),
		Disturbance: vec(21),
		ErrorMetric: vals[24],
		State:       state,
	}, nil
}

// Writer appends rows to a CSV result log. It implements sim.RowSink.
type Writer struct {
	c      io.Closer
	w      *bufio.Writer
	closed bool
}

// CreateWriter truncates path and writes the header.
func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	ww, err := newWriter(f, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return ww, nil
}

// NewWriter writes the header to w. Close flushes but does not close w.
func NewWriter(w io.Writer) (*Writer, error) {
	return newWriter(w, nil)
}

func newWriter(w io.Writer, c io.Closer) (*Writer, error) {
	bw := bufio.NewWriterSize(w, 64*1024)
	if _, err := bw.WriteString(Header + "\n"); err != nil {
		return nil, err
	}
	return &Writer{c: c, w: bw}, nil
}

func (ww *Writer) WriteRow(r sim.Row) error {
	if ww.closed {
		return errors.New("csv writer is closed")
	}
	var b strings.Builder
	b.Grow(320)
	fmt.Fprintf(&b, "%.3f", r.Time.Seconds())
	put := func(v ...float64) {
		for _, x := range v {
			fmt.Fprintf(&b, ",%.7f", x)
		}
	}
	put(r.TrueEuler.Yaw, r.TrueEuler.Pitch, r.TrueEuler.Roll)
	put(r.EstEuler.Yaw, r.EstEuler.Pitch, r.EstEuler.Roll)
	put(r.TrueBias[:]...)
	put(r.EstBias[:]...)
	put(r.TrueQuat.W)
	put(r.TrueQuat.V[:]...)
	put(r.EstQuat.W)
	put(r.EstQuat.V[:]...)
	put(r.Disturbance[:]...)
	put(r.ErrorMetric)
	b.WriteByte(',')
	b.WriteString(r.State.String())
	b.WriteByte('\n')

	_, err := ww.w.WriteString(b.String())
	return err
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		if ww.c != nil {
			_ = ww.c.Close()
		}
		return err
	}
	if ww.c == nil {
		return nil
	}
	return ww.c.Close()
}
