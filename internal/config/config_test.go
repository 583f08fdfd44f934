package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseReservedBalance(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]int64
	}{
		{
			name:  "multiple entries",
			input: "[alpha:50000][beta:10000]",
			want:  map[string]int64{"alpha": 50000, "beta": 10000},
		},
		{
			name:  "spaces tolerated",
			input: "[ alpha : 500 ]",
			want:  map[string]int64{"alpha": 500},
		},
		{
			name:  "garbage skipped",
			input: "[alpha:oops][beta:10]",
			want:  map[string]int64{"beta": 10},
		},
		{
			name:  "empty",
			input: "",
			want:  map[string]int64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseReservedBalance(tt.input))
		})
	}
}

func TestRaffleEnabledFor(t *testing.T) {
	off := Settings{EnableRaffle: false}
	assert.False(t, off.RaffleEnabledFor("alpha"))

	allSessions := Settings{EnableRaffle: true}
	assert.True(t, allSessions.RaffleEnabledFor("alpha"))

	scoped := Settings{EnableRaffle: true, RaffleSessions: []string{"Alpha"}}
	assert.True(t, scoped.RaffleEnabledFor("alpha"))
	assert.False(t, scoped.RaffleEnabledFor("beta"))
}

func TestValidateRequiresAPICredentials(t *testing.T) {
	assert.Error(t, Settings{}.Validate())
	assert.Error(t, Settings{APIID: 123}.Validate())
	assert.NoError(t, Settings{APIID: 123, APIHash: "h"}.Validate())
}

func TestRefIDForIsDeterministic(t *testing.T) {
	first := Qlyuker.RefIDFor("my-session", "bro-configured")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Qlyuker.RefIDFor("my-session", "bro-configured"))
	}

	valid := map[string]bool{"bro-configured": true}
	for _, code := range Qlyuker.RefCodes {
		valid[code] = true
	}
	for _, name := range []string{"a", "b", "c", "d", "session-42"} {
		assert.True(t, valid[Qlyuker.RefIDFor(name, "bro-configured")])
	}
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, 5, parseIntWithDefault("5", 1))
	assert.Equal(t, 1, parseIntWithDefault("", 1))
	assert.Equal(t, 1, parseIntWithDefault("-3", 1))
	assert.Equal(t, 1, parseIntWithDefault("abc", 1))

	assert.True(t, parseBoolWithDefault("true", false))
	assert.False(t, parseBoolWithDefault("nope", false))

	assert.Equal(t, []string{"a", "b"}, parseList(" a, b ,"))
	assert.Nil(t, parseList(""))
}
