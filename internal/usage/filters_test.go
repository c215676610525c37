package usage

import (
	"reflect"
	"testing"
	"time"
)

func TestEffectiveActivityIDs(t *testing.T) {
	allowed := map[int64]struct{}{1: {}, 2: {}, 3: {}}

	tests := []struct {
		name      string
		requested []int64
		want      []int64
	}{
		{name: "no request keeps allowed set", requested: nil, want: []int64{1, 2, 3}},
		{name: "request intersects allowed", requested: []int64{2, 3, 9}, want: []int64{2, 3}},
		{name: "duplicates collapse", requested: []int64{2, 2, 2}, want: []int64{2}},
		{name: "disjoint request is empty", requested: []int64{8, 9}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EffectiveActivityIDs(allowed, tt.requested)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("EffectiveActivityIDs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUsageFilterWidensOpenBounds(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	f := NewUsageFilter([]int64{1}, &from, nil)
	if !f.FromDate.Equal(from) {
		t.Fatalf("FromDate = %v, want %v", f.FromDate, from)
	}
	if !f.ToDate.Equal(MaxDate) {
		t.Fatalf("ToDate = %v, want sentinel %v", f.ToDate, MaxDate)
	}

	f = NewUsageFilter([]int64{1}, nil, nil)
	if !f.FromDate.Equal(MinDate) || !f.ToDate.Equal(MaxDate) {
		t.Fatalf("open filter = [%v, %v], want sentinel window", f.FromDate, f.ToDate)
	}
}
