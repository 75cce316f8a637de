package vulkan

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/math"
)

func TestSpirvWords(t *testing.T) {
	valid := make([]byte, 8)
	binary.LittleEndian.PutUint32(valid, spirvMagic)
	binary.LittleEndian.PutUint32(valid[4:], 0x00010000)

	bad := make([]byte, 4)
	binary.LittleEndian.PutUint32(bad, 0xdeadbeef)

	tests := []struct {
		name    string
		code    []byte
		want    []uint32
		wantErr bool
	}{
		{name: "valid", code: valid, want: []uint32{spirvMagic, 0x00010000}},
		{name: "empty", code: nil, wantErr: true},
		{name: "unaligned", code: valid[:6], wantErr: true},
		{name: "bad magic", code: bad, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SpirvWords(tt.code)
			if tt.wantErr {
				if !errors.Is(err, core.ErrConfiguration) {
					t.Fatalf("SpirvWords() error = %v, want ErrConfiguration", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SpirvWords() unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("SpirvWords() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("word %d = 0x%08x, want 0x%08x", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestVulkanSafeString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "\x00"},
		{"main", "main\x00"},
		{"main\x00", "main\x00"},
	}
	for _, tt := range tests {
		if got := VulkanSafeString(tt.in); got != tt.want {
			t.Errorf("VulkanSafeString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	in := []string{"a", "b\x00"}
	out := VulkanSafeStrings(in)
	if in[0] != "a" {
		t.Errorf("VulkanSafeStrings modified its input: %q", in)
	}
	if out[0] != "a\x00" || out[1] != "b\x00" {
		t.Errorf("VulkanSafeStrings() = %q", out)
	}
}

func TestCString(t *testing.T) {
	var name [16]byte
	copy(name[:], "VK_LAYER_X")
	if got := CString(name[:]); got != "VK_LAYER_X" {
		t.Errorf("CString() = %q, want VK_LAYER_X", got)
	}
	full := []byte("abcd")
	if got := CString(full); got != "abcd" {
		t.Errorf("CString() without terminator = %q, want abcd", got)
	}
}

func TestSliceBytesMatchesVertexLayout(t *testing.T) {
	data := sliceBytes(TriangleVertices)
	// Two float32 per vertex.
	if want := len(TriangleVertices) * 8; len(data) != want {
		t.Fatalf("len(sliceBytes) = %d, want %d", len(data), want)
	}
	if got := sliceBytes([]math.Vertex2D(nil)); got != nil {
		t.Errorf("sliceBytes(nil) = %v, want nil", got)
	}
}
