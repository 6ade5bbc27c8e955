package utf7

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	valid := [][2]string{
		{"", ""},
		{"INBOX", "INBOX"},
		{"&-", "&"},
		{"Work&-Play", "Work&Play"},
		{"Entw&APw-rfe", "Entwürfe"},
		{"Gel&APY-schte Elemente", "Gelöschte Elemente"},
		{"&BB4EQgQ,BEAEMAQyBDsENQQ9BD0ESwQ1-", "Отправленные"},
		{"&ZeVnLIqe-", "日本語"},
		{"Fun &2D3eCg-", "Fun \U0001f60a"},
		{"Archive/&U,BTFw-/2024", "Archive/台北/2024"},
		{"x &AP8A,wD,- y", "x ÿÿÿ y"},
		{"Long " + strings.Repeat("a", 100) + " &MEIwQg-", "Long " + strings.Repeat("a", 100) + " ああ"},
	}
	for _, tc := range valid {
		in, want := tc[0], tc[1]
		out, err := Decode(in)
		if assert.NoError(t, err, "Decode(%q)", in) {
			assert.Equal(t, want, out, "Decode(%q)", in)
		}
	}

	for _, in := range []string{
		"\x00",
		"abc\n",
		"Entwürfe",
		"&/+8-", // not the modified alphabet
		"&ZeVn\r\nLIqe-",
		"&AAAAHw=-",
		"&2A-",
		"&Jjo",
		"&AGE-",
		"&AGE-&Jjo-",
		"&2AA-",
		"&3ADYAA-",
	} {
		_, err := Decode(in)
		assert.Error(t, err, "Decode(%q)", in)
	}
}

func TestEncode(t *testing.T) {
	for _, tc := range [][2]string{
		{"", ""},
		{"INBOX", "INBOX"},
		{"R&D", "R&-D"},
		{"Entwürfe", "Entw&APw-rfe"},
		{"Éléments supprimés", "&AMk-l&AOk-ments supprim&AOk-s"},
		{"日本語", "&ZeVnLIqe-"},
		{"\U0001f4e5 Inbox", "&2D3c5Q- Inbox"},
		{"\x19", "&ABk-"},
	} {
		in, want := tc[0], tc[1]
		out := Encode(in)
		assert.Equal(t, want, out, "Encode(%q)", in)

		back, err := Decode(out)
		assert.NoError(t, err)
		assert.Equal(t, in, back)
	}
}
