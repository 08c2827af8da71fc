package dtnproto

import (
	"testing"

	"dtnex/internal/security"
	"dtnex/internal/testutil"
)

func FuzzDecode(f *testing.F) {
	auth := security.NewAuthenticator("open")
	env := testFields(1, 1)
	if b, err := EncodeContact(env, Contact{NodeA: 1, NodeB: 2, DurationMinutes: 5}, auth); err == nil {
		f.Add(b)
	}
	if b, err := EncodeMetadata(env, Metadata{NodeID: 1, Name: "a", Contact: "b"}, auth); err == nil {
		f.Add(b)
	}
	f.Add([]byte{2, 0, 0, 0, 0, 0, 0, 0, 0})

	f.Fuzz(func(t *testing.T, data []byte) {
		data = testutil.CapBytes(data, testutil.DefaultMaxFuzzBytes)
		testutil.WithTimeout(t, testutil.DefaultFuzzTimeout, func() {
			_, _ = Decode(data, false)
			_, _ = Decode(data, true)
		})
	})
}
