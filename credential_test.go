package cloud115

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredential_Valid(t *testing.T) {
	tests := []struct {
		name    string
		cred    Credential
		wantErr bool
	}{
		{"complete", Credential{UID: "u1", CID: "c1", SEID: "s1"}, false},
		{"missing uid", Credential{CID: "c1", SEID: "s1"}, true},
		{"missing cid", Credential{UID: "u1", SEID: "s1"}, true},
		{"missing seid", Credential{UID: "u1", CID: "c1"}, true},
		{"all empty", Credential{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cred.Valid()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCredential)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCredential_ValidReportsAllProblems(t *testing.T) {
	err := Credential{}.Valid()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uid is required")
	assert.Contains(t, err.Error(), "cid is required")
	assert.Contains(t, err.Error(), "seid is required")
}

func TestParseCookies(t *testing.T) {
	cred, err := ParseCookies("UID=u1; CID=c1; SEID=s1")
	require.NoError(t, err)
	assert.Equal(t, Credential{UID: "u1", CID: "c1", SEID: "s1"}, cred)
}

func TestParseCookies_IgnoresUnrelatedAndCase(t *testing.T) {
	cred, err := ParseCookies("acw_tc=xyz; uid=u1;cid=c1 ; Seid=s1; other=1")
	require.NoError(t, err)
	assert.Equal(t, Credential{UID: "u1", CID: "c1", SEID: "s1"}, cred)
}

func TestParseCookies_Incomplete(t *testing.T) {
	_, err := ParseCookies("UID=u1; CID=c1")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestCredential_Equality(t *testing.T) {
	a := Credential{UID: "u1", CID: "c1", SEID: "s1"}
	b := Credential{UID: "u1", CID: "c1", SEID: "s1"}
	assert.Equal(t, a, b)
	assert.True(t, a == b, "credentials are comparable value objects")
}
