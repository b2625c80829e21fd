package codec

import "testing"

// FuzzDecode feeds arbitrary bytes to the decoder.
// Run with: go test -fuzz=FuzzDecode -fuzztime=30s ./internal/codec/
func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"dest":2,"from":1,"type":9,"slices":0,"sliceNum":0,"packageID":7,"timestamp":100,"msg":"hello"}`))
	f.Add([]byte(`{"dest":2,"from":1,"type":5,"slices":0,"sliceNum":0,"packageID":7,"timestamp":100,"subs":[]}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`[]`))
	f.Add([]byte(`null`))

	f.Fuzz(func(t *testing.T, data []byte) {
		p, err := Decode(data)
		if err != nil {
			return
		}
		// Anything that decodes must encode again.
		if _, err := Encode(p); err != nil && p.Slices == 0 && !p.Type.IsNodeSync() {
			t.Fatalf("re-encode of decoded package failed: %v", err)
		}
	})
}
