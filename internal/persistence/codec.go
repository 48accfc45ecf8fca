package persistence

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/mvilaca/triage/pkg/api"
)

func init() {
	// Snapshot scalars and diff values travel through interface-typed
	// fields; gob needs their concrete types registered.
	gob.Register("")
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register(time.Time{})
	gob.Register(map[string]api.Value{})
	gob.Register([]api.Value{})
}

// EncodeProcess serializes the process-level fields of an aggregate. Steps
// are stored separately; the encoded copy carries none.
func EncodeProcess(p *api.Process) ([]byte, error) {
	cp := *p
	cp.Steps = nil
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&cp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeProcess is the inverse of EncodeProcess. The caller attaches steps.
func DecodeProcess(data []byte) (*api.Process, error) {
	var p api.Process
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// EncodeStep serializes a step including its documents.
func EncodeStep(s *api.Step) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeStep is the inverse of EncodeStep.
func DecodeStep(data []byte) (*api.Step, error) {
	var s api.Step
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// EncodeVersion serializes a version including snapshot and diffs. The
// Current flag is tracked by the stores themselves and always encoded false.
func EncodeVersion(v *api.Version) ([]byte, error) {
	cp := *v
	cp.Current = false
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&cp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeVersion is the inverse of EncodeVersion.
func DecodeVersion(data []byte) (*api.Version, error) {
	var v api.Version
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// CloneProcess deep-copies an aggregate through the codec. The memory store
// uses this so callers can never alias its internal state.
func CloneProcess(p *api.Process) (*api.Process, error) {
	data, err := EncodeProcess(p)
	if err != nil {
		return nil, err
	}
	cp, err := DecodeProcess(data)
	if err != nil {
		return nil, err
	}
	cp.Steps = make([]*api.Step, 0, len(p.Steps))
	for _, s := range p.Steps {
		sc, err := CloneStep(s)
		if err != nil {
			return nil, err
		}
		cp.Steps = append(cp.Steps, sc)
	}
	return cp, nil
}

// CloneStep deep-copies a step through the codec.
func CloneStep(s *api.Step) (*api.Step, error) {
	data, err := EncodeStep(s)
	if err != nil {
		return nil, err
	}
	return DecodeStep(data)
}

// CloneVersion deep-copies a version through the codec, preserving Current.
func CloneVersion(v *api.Version) (*api.Version, error) {
	data, err := EncodeVersion(v)
	if err != nil {
		return nil, err
	}
	cp, err := DecodeVersion(data)
	if err != nil {
		return nil, err
	}
	cp.Current = v.Current
	return cp, nil
}
