package frame

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/schizzz8/lucrezio-semantic-perception/spatialmath"
	"github.com/schizzz8/lucrezio-semantic-perception/vision/groundtruth"
)

// maxPreallocModels caps the capacity reserved from a frame's declared model count, which is
// untrusted until the model lines have been read.
const maxPreallocModels = 1024

// Record is the content of a frame file:
//
//	px py pz r00 r01 r02 r10 r11 r12 r20 r21 r22          (camera pose)
//	px py pz r00 r01 r02 r10 r11 r12 r20 r21 r22          (logical camera pose)
//	n
//	type px py pz r00 ... r22 minx miny minz maxx maxy maxz   (n times)
type Record struct {
	CameraPose  spatialmath.Pose
	LogicalPose spatialmath.Pose
	Models      []groundtruth.Model
}

const poseFields = 12

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parsePose(fields []string) (spatialmath.Pose, error) {
	if len(fields) != poseFields {
		return spatialmath.Pose{}, errors.Errorf("expected %d pose values, got %d", poseFields, len(fields))
	}
	vals, err := parseFloats(fields)
	if err != nil {
		return spatialmath.Pose{}, err
	}
	rot, err := spatialmath.NewRotationMatrix(vals[3:])
	if err != nil {
		return spatialmath.Pose{}, err
	}
	pose := spatialmath.NewPose(r3.Vector{X: vals[0], Y: vals[1], Z: vals[2]}, rot)
	if err := spatialmath.CheckRigid(pose, spatialmath.DefaultRigidTolerance); err != nil {
		return spatialmath.Pose{}, err
	}
	return pose, nil
}

func parseModel(fields []string) (groundtruth.Model, error) {
	if len(fields) != 1+poseFields+6 {
		return groundtruth.Model{}, errors.Errorf("expected %d model values, got %d", 1+poseFields+6, len(fields))
	}
	pose, err := parsePose(fields[1 : 1+poseFields])
	if err != nil {
		return groundtruth.Model{}, err
	}
	ext, err := parseFloats(fields[1+poseFields:])
	if err != nil {
		return groundtruth.Model{}, err
	}
	return groundtruth.Model{
		Type: fields[0],
		Pose: pose,
		Min:  r3.Vector{X: ext[0], Y: ext[1], Z: ext[2]},
		Max:  r3.Vector{X: ext[3], Y: ext[4], Z: ext[5]},
	}, nil
}

// ParseRecord reads a frame file. Errors name the offending line.
func ParseRecord(r io.Reader) (*Record, error) {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	next := func(what string) ([]string, error) {
		for scanner.Scan() {
			lineNum++
			if fields := strings.Fields(scanner.Text()); len(fields) > 0 {
				return fields, nil
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, errors.Errorf("unexpected end of file, expected %s after line %d", what, lineNum)
	}

	rec := &Record{}
	fields, err := next("camera pose")
	if err != nil {
		return nil, err
	}
	if rec.CameraPose, err = parsePose(fields); err != nil {
		return nil, errors.Wrapf(err, "line %d: bad camera pose", lineNum)
	}
	if fields, err = next("logical camera pose"); err != nil {
		return nil, err
	}
	if rec.LogicalPose, err = parsePose(fields); err != nil {
		return nil, errors.Wrapf(err, "line %d: bad logical camera pose", lineNum)
	}
	if fields, err = next("model count"); err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || len(fields) != 1 || n < 0 {
		return nil, errors.Errorf("line %d: bad model count %q", lineNum, strings.Join(fields, " "))
	}
	rec.Models = make([]groundtruth.Model, 0, min(n, maxPreallocModels))
	for i := 0; i < n; i++ {
		if fields, err = next(fmt.Sprintf("model %d of %d", i+1, n)); err != nil {
			return nil, err
		}
		m, err := parseModel(fields)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: bad model", lineNum)
		}
		rec.Models = append(rec.Models, m)
	}
	return rec, nil
}

// ReadFrameFile reads a frame file from disk.
func ReadFrameFile(fn string) (*Record, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening frame file %q", fn)
	}
	defer utils.UncheckedErrorFunc(f.Close)
	rec, err := ParseRecord(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading frame file %q", fn)
	}
	return rec, nil
}

func formatPose(p spatialmath.Pose) string {
	vals := []float64{p.Translation.X, p.Translation.Y, p.Translation.Z}
	vals = append(vals, p.Rotation[:]...)
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// WriteRecord writes rec in the frame file layout ParseRecord reads.
func WriteRecord(w io.Writer, rec *Record) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, formatPose(rec.CameraPose))
	fmt.Fprintln(bw, formatPose(rec.LogicalPose))
	fmt.Fprintln(bw, len(rec.Models))
	for _, m := range rec.Models {
		fmt.Fprintf(bw, "%s %s %s %s %s %s %s %s\n", m.Type, formatPose(m.Pose),
			strconv.FormatFloat(m.Min.X, 'g', -1, 64), strconv.FormatFloat(m.Min.Y, 'g', -1, 64),
			strconv.FormatFloat(m.Min.Z, 'g', -1, 64), strconv.FormatFloat(m.Max.X, 'g', -1, 64),
			strconv.FormatFloat(m.Max.Y, 'g', -1, 64), strconv.FormatFloat(m.Max.Z, 'g', -1, 64))
	}
	return bw.Flush()
}

// WriteFrameFile writes rec to fn.
func WriteFrameFile(fn string, rec *Record) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return errors.Wrapf(err, "error creating frame file %q", fn)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return WriteRecord(f, rec)
}
