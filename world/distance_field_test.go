package world

import "testing"

func TestDistanceFieldQueryOutOfGridIsZero(t *testing.T) {
	df := &DistanceField{Width: 2, Height: 2, Scale: 1, data: []Vec2{
		{X: 1, Y: 0}, {X: 0, Y: 1},
		{X: -1, Y: 0}, {X: 0, Y: -1},
	}}

	if got := df.Query(0, 0); got != (Vec2{X: 1, Y: 0}) {
		t.Fatalf("Query(0,0) = %+v, want (1,0)", got)
	}
	if got := df.Query(-10, 0); got != (Vec2{}) {
		t.Fatalf("Query(-10,0) = %+v, want zero vector (out of grid)", got)
	}
	if got := df.Query(5, 5); got != (Vec2{}) {
		t.Fatalf("Query(5,5) = %+v, want zero vector (out of grid)", got)
	}
}

func TestDistanceFieldLen(t *testing.T) {
	df := &DistanceField{Width: 3, Height: 4, data: make([]Vec2, 12)}
	if got := df.Len(); got != 12 {
		t.Fatalf("Len() = %d, want 12", got)
	}
}
