package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncValidate(t *testing.T) {
	valid := Sync{
		DBPath:            "cache.db",
		RPCURL:            "http://localhost:5052",
		MaxSlot:           64,
		RateLimitRequests: 10,
		RateLimitSeconds:  1.0,
	}
	assert.NoError(t, valid.Validate())

	missingDB := valid
	missingDB.DBPath = ""
	assert.Error(t, missingDB.Validate())

	missingRPC := valid
	missingRPC.RPCURL = ""
	assert.Error(t, missingRPC.Validate())

	badRate := valid
	badRate.RateLimitRequests = 0
	assert.Error(t, badRate.Validate())

	badSeconds := valid
	badSeconds.RateLimitSeconds = -1
	assert.Error(t, badSeconds.Validate())
}

func TestConfRuleValidate(t *testing.T) {
	valid := ConfRule{
		DBPath:  "cache.db",
		Quorums: []float64{0.67, 1.0},
		MaxSlot: 64,
	}
	assert.NoError(t, valid.Validate())

	noQuorum := valid
	noQuorum.Quorums = nil
	assert.Error(t, noQuorum.Validate())

	outOfRange := valid
	outOfRange.Quorums = []float64{0.5, 1.5}
	assert.Error(t, outOfRange.Validate())

	zeroQuorum := valid
	zeroQuorum.Quorums = []float64{0}
	assert.Error(t, zeroQuorum.Validate())
}
