package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValidOnceUpstreamIsSet(t *testing.T) {
	c := Default()
	c.UpstreamBaseURL = "http://upstream.internal"

	require.NoError(t, c.Validate())
}

func TestValidate_RejectsNonPowerOfTwoRingCapacity(t *testing.T) {
	c := Default()
	c.UpstreamBaseURL = "http://upstream.internal"
	c.RingCapacitySlots = 100

	assert.Error(t, c.Validate())
}

func TestValidate_RejectsOutOfRangeSampleRate(t *testing.T) {
	c := Default()
	c.UpstreamBaseURL = "http://upstream.internal"
	c.LoggingSampleRate = 1.5

	assert.Error(t, c.Validate())
}

func TestValidate_RejectsMissingUpstream(t *testing.T) {
	c := Default()
	assert.Error(t, c.Validate(), "expected a Config without upstream_base_url to fail validation")
}

func TestRequestTimeout_ConvertsMillisToDuration(t *testing.T) {
	c := Default()
	c.RequestTimeoutMs = 1500

	assert.Equal(t, int64(1500), c.RequestTimeout().Milliseconds())
}
