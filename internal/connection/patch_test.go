package connection

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyStagedPatchMasterEnable(t *testing.T) {
	base := DefaultStagedState(80)
	next, err := ApplyStagedPatch(base, []byte(`{"master_enable": true}`), 80)
	require.NoError(t, err)
	assert.True(t, next.MasterEnable)
	// Untouched sections survive.
	if diff := cmp.Diff(base.TransportParams, next.TransportParams); diff != "" {
		t.Errorf("transport params changed (-base +next):\n%s", diff)
	}
	assert.Equal(t, base.Audio, next.Audio)
}

func TestApplyStagedPatchTransportParamsFillDefaults(t *testing.T) {
	base := DefaultStagedState(80)
	next, err := ApplyStagedPatch(base, []byte(`{"transport_params":[{"destination_ip":"239.1.2.3","payload_type":97}]}`), 80)
	require.NoError(t, err)
	require.Len(t, next.TransportParams, 1)
	p := next.TransportParams[0]
	assert.Equal(t, "239.1.2.3", p.DestinationIP)
	assert.Equal(t, 97, p.PayloadType)
	// Omitted fields come from the leg defaults.
	assert.Equal(t, 5004, p.DestinationPort)
	assert.Equal(t, 64, p.TTL)
	assert.Equal(t, "L24", p.EncodingName)
}

func TestApplyStagedPatchAudioFillsConfiguredVolume(t *testing.T) {
	base := DefaultStagedState(35)
	next, err := ApplyStagedPatch(base, []byte(`{"audio":{"mute":true}}`), 35)
	require.NoError(t, err)
	assert.True(t, next.Audio.Mute)
	assert.Equal(t, 35, next.Audio.Volume)
}

func TestApplyStagedPatchRejectsUnknownKeys(t *testing.T) {
	base := DefaultStagedState(80)

	_, err := ApplyStagedPatch(base, []byte(`{"master_enabled": true}`), 80)
	require.ErrorIs(t, err, ErrValidation)

	_, err = ApplyStagedPatch(base, []byte(`{"transport_params":[{"dest_ip":"239.0.0.1"}]}`), 80)
	require.ErrorIs(t, err, ErrValidation)
}

func TestApplyStagedPatchRejectsOutOfRange(t *testing.T) {
	base := DefaultStagedState(80)
	cases := map[string]string{
		"port":        `{"transport_params":[{"destination_port": 70000}]}`,
		"ttl":         `{"transport_params":[{"ttl": 0}]}`,
		"sample rate": `{"transport_params":[{"sample_rate": 4000}]}`,
		"payload":     `{"transport_params":[{"payload_type": 128}]}`,
		"bad ip":      `{"transport_params":[{"destination_ip": "not-an-ip"}]}`,
		"ipv6 dest":   `{"transport_params":[{"destination_ip": "ff02::1"}]}`,
		"volume":      `{"audio":{"volume": 101}}`,
		"not object":  `[1, 2]`,
		"empty legs":  `{"transport_params": []}`,
	}
	for name, patch := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ApplyStagedPatch(base, []byte(patch), 80)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestApplyStagedPatchFailureLeavesBaseUntouched(t *testing.T) {
	base := DefaultStagedState(80)
	got, err := ApplyStagedPatch(base, []byte(`{"audio":{"volume": 500}}`), 80)
	require.Error(t, err)
	if diff := cmp.Diff(base, got); diff != "" {
		t.Errorf("base mutated on failed patch (-base +got):\n%s", diff)
	}
}

func TestApplyStagedPatchActivationModeParses(t *testing.T) {
	base := DefaultStagedState(80)
	next, err := ApplyStagedPatch(base, []byte(`{"activation":{"mode":"activate_scheduled_absolute","requested_time":"10:0"}}`), 80)
	require.NoError(t, err)
	assert.Equal(t, "activate_scheduled_absolute", next.Activation.Mode)
	require.NotNil(t, next.Activation.RequestedTime)
	assert.Equal(t, "10:0", *next.Activation.RequestedTime)
}
