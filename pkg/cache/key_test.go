package cache

import "testing"

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "owner",
			key:  Key{Resource: "owner", ID: 10},
			want: "feed:owner:10",
		},
		{
			name: "resource is lower-cased",
			key:  Key{Resource: "Owner", ID: 3},
			want: "feed:owner:3",
		},
		{
			name: "separators are trimmed",
			key:  Key{Resource: ":owner:", ID: 7},
			want: "feed:owner:7",
		},
		{
			name: "empty resource",
			key:  Key{ID: 1},
			want: "feed:1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKey_Deterministic(t *testing.T) {
	a := Key{Resource: "owner", ID: 42}
	b := Key{Resource: "owner", ID: 42}

	if a.String() != b.String() {
		t.Errorf("equal keys produced different strings: %q vs %q", a.String(), b.String())
	}
}
