package connection

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// stagedPatchKeys is the closed schema of a staged PATCH body.
var stagedPatchKeys = map[string]struct{}{
	"master_enable":    {},
	"transport_params": {},
	"activation":       {},
	"audio":            {},
}

// ApplyStagedPatch merges a shallow patch into base. Each top-level key
// present replaces that section; partial section objects are filled from
// the section defaults, not from the previous staged values. Unknown
// keys at any level fail with ErrValidation.
func ApplyStagedPatch(base StagedState, patch []byte, defaultVolume int) (StagedState, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(patch, &raw); err != nil {
		return base, fmt.Errorf("%w: body must be a JSON object: %v", ErrValidation, err)
	}
	for key := range raw {
		if _, ok := stagedPatchKeys[key]; !ok {
			return base, fmt.Errorf("%w: unknown field %q", ErrValidation, key)
		}
	}

	next := base.Clone()

	if v, ok := raw["master_enable"]; ok {
		if err := json.Unmarshal(v, &next.MasterEnable); err != nil {
			return base, fmt.Errorf("%w: master_enable must be a boolean", ErrValidation)
		}
	}
	if v, ok := raw["transport_params"]; ok {
		var legs []json.RawMessage
		if err := json.Unmarshal(v, &legs); err != nil {
			return base, fmt.Errorf("%w: transport_params must be a list", ErrValidation)
		}
		params := make([]TransportParams, len(legs))
		for i, leg := range legs {
			p := DefaultTransportParams()
			if err := strictUnmarshal(leg, &p); err != nil {
				return base, fmt.Errorf("%w: transport_params[%d]: %v", ErrValidation, i, err)
			}
			params[i] = p
		}
		next.TransportParams = params
	}
	if v, ok := raw["activation"]; ok {
		a := DefaultActivationParams()
		if err := strictUnmarshal(v, &a); err != nil {
			return base, fmt.Errorf("%w: activation: %v", ErrValidation, err)
		}
		next.Activation = a
	}
	if v, ok := raw["audio"]; ok {
		a := AudioParams{Volume: defaultVolume}
		if err := strictUnmarshal(v, &a); err != nil {
			return base, fmt.Errorf("%w: audio: %v", ErrValidation, err)
		}
		next.Audio = a
	}

	if err := next.Validate(); err != nil {
		return base, err
	}
	return next, nil
}

// strictUnmarshal rejects unknown keys so typos surface as 400s instead
// of being silently dropped.
func strictUnmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
