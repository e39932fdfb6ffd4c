package types

import "testing"

func TestOhlcvBarValidate(t *testing.T) {
	tests := []struct {
		name    string
		bar     OhlcvBar
		wantErr bool
	}{
		{
			name: "valid bar",
			bar:  OhlcvBar{Timestamp: 1000, Open: 10, High: 12, Low: 9, Close: 11, Volume: 100},
		},
		{
			name:    "negative price",
			bar:     OhlcvBar{Timestamp: 1000, Open: -10, High: 12, Low: 9, Close: 11, Volume: 100},
			wantErr: true,
		},
		{
			name:    "low above high",
			bar:     OhlcvBar{Timestamp: 1000, Open: 10, High: 9, Low: 12, Close: 11, Volume: 100},
			wantErr: true,
		},
		{
			name:    "open outside range",
			bar:     OhlcvBar{Timestamp: 1000, Open: 20, High: 12, Low: 9, Close: 11, Volume: 100},
			wantErr: true,
		},
		{
			name:    "negative volume",
			bar:     OhlcvBar{Timestamp: 1000, Open: 10, High: 12, Low: 9, Close: 11, Volume: -1},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bar.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSortAndDedup(t *testing.T) {
	bars := []OhlcvBar{
		{Timestamp: 300, Close: 3},
		{Timestamp: 100, Close: 1},
		{Timestamp: 200, Close: 2},
		{Timestamp: 100, Close: 99}, // duplicate timestamp, last wins
	}

	out := SortAndDedup(bars)

	want := []int64{100, 200, 300}
	if len(out) != len(want) {
		t.Fatalf("got %d bars, want %d", len(out), len(want))
	}
	for i, ts := range want {
		if out[i].Timestamp != ts {
			t.Errorf("bar %d: timestamp = %d, want %d", i, out[i].Timestamp, ts)
		}
	}
	if out[0].Close != 99 {
		t.Errorf("duplicate at ts=100: Close = %v, want last-wins value 99", out[0].Close)
	}
}
