package math

import "testing"

func near(a, b Vec3, tolerance float32) bool {
	return kabs(a.X-b.X) <= tolerance && kabs(a.Y-b.Y) <= tolerance && kabs(a.Z-b.Z) <= tolerance
}

func identity() Mat4 {
	return Mat4{Data: [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}}
}

// transformPoint applies m to v with an implicit w of 1.
func transformPoint(v Vec3, m Mat4) Vec3 {
	return Vec3{
		X: v.X*m.Data[0] + v.Y*m.Data[4] + v.Z*m.Data[8] + m.Data[12],
		Y: v.X*m.Data[1] + v.Y*m.Data[5] + v.Z*m.Data[9] + m.Data[13],
		Z: v.X*m.Data[2] + v.Y*m.Data[6] + v.Z*m.Data[10] + m.Data[14],
	}
}

func TestVec3Ops(t *testing.T) {
	a := NewVec3(1, 2, 3)
	b := NewVec3(4, 5, 6)

	tests := []struct {
		name string
		got  Vec3
		want Vec3
	}{
		{"add", a.Add(b), NewVec3(5, 7, 9)},
		{"sub", b.Sub(a), NewVec3(3, 3, 3)},
		{"scale", a.MulScalar(2), NewVec3(2, 4, 6)},
		{"cross x y", NewVec3(1, 0, 0).Cross(NewVec3(0, 1, 0)), NewVec3(0, 0, 1)},
		{"normalize", NewVec3(0, 3, 4).Normalize(), NewVec3(0, 0.6, 0.8)},
		{"normalize zero", NewVec3Zero().Normalize(), NewVec3Zero()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !near(tt.got, tt.want, K_FLOAT_EPSILON*4) {
				t.Errorf("got %+v, want %+v", tt.got, tt.want)
			}
		})
	}

	if d := a.Dot(b); d != 32 {
		t.Errorf("Dot = %v, want 32", d)
	}
}

func TestLookAt(t *testing.T) {
	t.Run("default orientation is identity", func(t *testing.T) {
		got := NewMat4LookAt(NewVec3Zero(), NewVec3(0, 0, -1), NewVec3(0, 1, 0))
		want := identity()
		for i := range want.Data {
			if kabs(got.Data[i]-want.Data[i]) > K_FLOAT_EPSILON {
				t.Fatalf("Data[%d] = %v, want %v", i, got.Data[i], want.Data[i])
			}
		}
	})

	t.Run("point ahead lands on negative z", func(t *testing.T) {
		eye := NewVec3(0, 0, -1)
		view := NewMat4LookAt(eye, eye.Add(NewVec3(0, 0, 1)), NewVec3(0, 1, 0))
		got := transformPoint(NewVec3(0, 0, 5), view)
		if !near(got, NewVec3(0, 0, -6), 1e-5) {
			t.Errorf("transformed = %+v, want (0,0,-6)", got)
		}
	})
}

func TestPerspective(t *testing.T) {
	p := NewMat4Perspective(DegToRad(90), 2, 0.1, 100)
	if kabs(p.Data[0]-0.5) > 1e-5 {
		t.Errorf("Data[0] = %v, want 0.5", p.Data[0])
	}
	if kabs(p.Data[5]-1) > 1e-5 {
		t.Errorf("Data[5] = %v, want 1", p.Data[5])
	}
	if p.Data[11] != -1 {
		t.Errorf("Data[11] = %v, want -1", p.Data[11])
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		v, lo, hi, want float32
	}{
		{5, 0, 10, 5},
		{-1, 0, 10, 0},
		{11, 0, 10, 10},
	}
	for _, tt := range tests {
		if got := Clamp(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
	if got := Clamp[uint32](4000, 1, 2048); got != 2048 {
		t.Errorf("Clamp uint32 = %d", got)
	}
}
