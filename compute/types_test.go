package compute

import (
	"errors"
	"testing"
)

func TestDTypeProperties(t *testing.T) {
	tests := []struct {
		dt      DType
		size    int
		isFloat bool
		name    string
		wgsl    string
	}{
		{Int32, 4, false, "int32", "i32"},
		{Uint32, 4, false, "uint32", "u32"},
		{Int64, 8, false, "int64", "i64"},
		{Uint64, 8, false, "uint64", "u64"},
		{Float32, 4, true, "float32", "f32"},
		{Float64, 8, true, "float64", "f64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dt.Size(); got != tt.size {
				t.Errorf("Size() = %d, want %d", got, tt.size)
			}
			if got := tt.dt.IsFloat(); got != tt.isFloat {
				t.Errorf("IsFloat() = %v, want %v", got, tt.isFloat)
			}
			if got := tt.dt.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if got := tt.dt.WGSL(); got != tt.wgsl {
				t.Errorf("WGSL() = %q, want %q", got, tt.wgsl)
			}
			if !tt.dt.Valid() {
				t.Error("Valid() = false")
			}
		})
	}
	if InvalidDType.Valid() || InvalidDType.Size() != 0 {
		t.Error("InvalidDType must be invalid with zero size")
	}
}

func TestParseDType(t *testing.T) {
	tests := []struct {
		in   string
		want DType
	}{
		{"float", Float32},
		{"double", Float64},
		{"f32", Float32},
		{"UINT", Uint32},
		{" int ", Int32},
		{"u64", Uint64},
		{"long", Int64},
	}
	for _, tt := range tests {
		got, err := ParseDType(tt.in)
		if err != nil {
			t.Errorf("ParseDType(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDType(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if _, err := ParseDType("complex"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("ParseDType(complex) err = %v, want ErrTypeMismatch", err)
	}
}

func TestDTypeFor(t *testing.T) {
	if DTypeFor[float32]() != Float32 || DTypeFor[int64]() != Int64 || DTypeFor[uint32]() != Uint32 {
		t.Error("DTypeFor returned wrong type")
	}
}

func TestViewSlice(t *testing.T) {
	v := View{Buffer: 1, DType: Float64, Offset: 2, Len: 10}
	if v.ByteOffset() != 16 || v.ByteLen() != 80 {
		t.Errorf("bytes = (%d, %d), want (16, 80)", v.ByteOffset(), v.ByteLen())
	}

	s, err := v.Slice(3, 7)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if s.Offset != 5 || s.Len != 4 || s.Buffer != 1 || s.DType != Float64 {
		t.Errorf("Slice = %+v", s)
	}

	for _, r := range [][2]int{{-1, 2}, {4, 3}, {0, 11}} {
		if _, err := v.Slice(r[0], r[1]); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Slice(%d, %d) err = %v, want ErrOutOfRange", r[0], r[1], err)
		}
	}
}
