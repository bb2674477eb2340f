package io

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// BenchmarkCSVReader benchmarks CSV reading performance
func BenchmarkCSVReader(b *testing.B) {
	sizes := []int{100, 1000, 10000}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("ReadCSV_%d_rows", size), func(b *testing.B) {
			src := Bytes([]byte(generateCSVData(size)))
			mem := memory.NewGoAllocator()
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				rec, err := NewCSVReader(src, DefaultCSVOptions(), mem).Read(ctx)
				if err != nil {
					b.Fatal(err)
				}
				rec.Release()
			}
		})
	}
}

// BenchmarkCSVRoundTrip benchmarks full read-write cycle
func BenchmarkCSVRoundTrip(b *testing.B) {
	sizes := []int{100, 1000, 10000}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("RoundTrip_%d_rows", size), func(b *testing.B) {
			src := Bytes([]byte(generateCSVData(size)))
			mem := memory.NewGoAllocator()
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				rec, err := NewCSVReader(src, DefaultCSVOptions(), mem).Read(ctx)
				if err != nil {
					b.Fatal(err)
				}

				var buf bytes.Buffer
				if err := NewCSVWriter(&buf, DefaultCSVOptions(), mem).Write(ctx, rec); err != nil {
					b.Fatal(err)
				}
				rec.Release()
			}
		})
	}
}

// generateCSVData creates test CSV data with the specified number of rows
func generateCSVData(rows int) string {
	var sb strings.Builder
	sb.WriteString("id,name,age,salary,active\n")

	for i := 0; i < rows; i++ {
		sb.WriteString(fmt.Sprintf("%d,Person_%d,%d,%.2f,%t\n",
			i, i, 25+(i%40), 30000.0+(float64(i)*100.0), i%2 == 0))
	}

	return sb.String()
}
