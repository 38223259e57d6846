package dialect

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	assert.Equal(t, AlgMD5, Lookup(SMB1).Algorithm)
	for _, v := range Preference() {
		info := Lookup(v)
		assert.Equal(t, AlgHMACSHA256, info.Algorithm, v.String())
		assert.Equal(t, v == SMB311, info.RequiresNegotiateContexts, v.String())
	}
	assert.Equal(t, AlgNone, Lookup(Version(0x0999)).Algorithm)
	assert.False(t, Lookup(SMB1).RequiresNegotiateContexts)
}

func TestSelectSMB2PicksHighestRegardlessOfOrder(t *testing.T) {
	all := Preference()
	rng := rand.New(rand.NewPCG(1, 2))

	for mask := 1; mask < 1<<len(all); mask++ {
		var offered []Version
		for i, v := range all {
			if mask&(1<<i) != 0 {
				offered = append(offered, v)
			}
		}
		// Preference index of the lowest set bit is the expected pick.
		var want Version
		for i, v := range all {
			if mask&(1<<i) != 0 {
				want = v
				break
			}
		}
		offered = append(offered, Version(0x0222), Wildcard)
		rng.Shuffle(len(offered), func(i, j int) { offered[i], offered[j] = offered[j], offered[i] })

		got, ok := SelectSMB2(offered)
		require.True(t, ok)
		assert.Equal(t, want, got, "offered %v", offered)
	}
}

func TestSelectSMB2NoMatch(t *testing.T) {
	_, ok := SelectSMB2([]Version{0x0100, Wildcard, 0x0400})
	assert.False(t, ok)
	_, ok = SelectSMB2(nil)
	assert.False(t, ok)
}

func TestSelectSMB1(t *testing.T) {
	idx, ok := SelectSMB1([]string{"PC NETWORK PROGRAM 1.0", "LANMAN1.0", "NT LM 0.12", "SMB 2.002"})
	require.True(t, ok)
	assert.Equal(t, 2, idx)

	_, ok = SelectSMB1([]string{"LANMAN2.1"})
	assert.False(t, ok)
}

func TestHasSMB2Wildcard(t *testing.T) {
	assert.True(t, HasSMB2Wildcard([]string{"NT LM 0.12", "SMB 2.???"}))
	assert.False(t, HasSMB2Wildcard([]string{"NT LM 0.12", "SMB 2.002"}))
}

func TestString(t *testing.T) {
	assert.Equal(t, "0x311", SMB311.String())
	assert.Equal(t, "0x202", SMB202.String())
	assert.Equal(t, "0x2ff", Wildcard.String())
	assert.Equal(t, "NT LM 0.12", SMB1.String())
}

func TestPreferenceIsCopy(t *testing.T) {
	p := Preference()
	p[0] = SMB202
	assert.Equal(t, SMB311, Preference()[0])
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Version
		err  bool
	}{
		{"0x311", SMB311, false},
		{"302", SMB302, false},
		{"3.0", SMB300, false},
		{"2.1", SMB210, false},
		{"smb1", SMB1, false},
		{"0x2ff", Unknown, true},
		{"banana", Unknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAll(t *testing.T) {
	all := All()
	require.Len(t, all, 6)
	assert.Equal(t, SMB311, all[0].Version)
	assert.Equal(t, SMB1, all[5].Version)
}
