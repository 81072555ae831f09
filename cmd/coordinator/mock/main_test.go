package main

import "testing"

func TestParseTask(t *testing.T) {
	tests := []struct {
		name        string
		task        string
		wantProduct string
		wantBatches int
	}{
		{
			name:        "default query",
			task:        "Can we produce 3 batches of Product A?",
			wantProduct: "Product A",
			wantBatches: 3,
		},
		{
			name:        "other product and count",
			task:        "Can we produce 12 batches of Product B?",
			wantProduct: "Product B",
			wantBatches: 12,
		},
		{
			name:        "single batch",
			task:        "Can we make 1 batch of Product C?",
			wantProduct: "Product C",
			wantBatches: 1,
		},
		{
			name:        "no question mark",
			task:        "produce 5 batches of Product B",
			wantProduct: "Product B",
			wantBatches: 5,
		},
		{
			name:        "unmatched task falls back",
			task:        "What is the plant status?",
			wantProduct: "Product A",
			wantBatches: 3,
		},
		{
			name:        "zero batches falls back",
			task:        "Can we produce 0 batches of Product B?",
			wantProduct: "Product A",
			wantBatches: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product, batches := parseTask(tt.task)
			if product != tt.wantProduct {
				t.Errorf("Expected product %q, got %q", tt.wantProduct, product)
			}
			if batches != tt.wantBatches {
				t.Errorf("Expected %d batches, got %d", tt.wantBatches, batches)
			}
		})
	}
}
