package controllers

import "testing"

func TestMemberSetsEqual(t *testing.T) {
	tests := []struct {
		name string
		a    []uint
		b    []uint
		want bool
	}{
		{"identical", []uint{1, 2}, []uint{1, 2}, true},
		{"order ignored", []uint{2, 1}, []uint{1, 2}, true},
		{"duplicates collapse", []uint{1, 2, 2}, []uint{1, 2}, true},
		{"subset", []uint{1}, []uint{1, 2}, false},
		{"superset", []uint{1, 2, 3}, []uint{1, 2}, false},
		{"disjoint", []uint{1, 2}, []uint{3, 4}, false},
		{"both empty", nil, nil, true},
		{"one empty", []uint{1}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := memberSetsEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("memberSetsEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
