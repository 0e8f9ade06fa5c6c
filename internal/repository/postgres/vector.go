package postgres

import (
	"strconv"
	"strings"
)

// vectorLiteral renders a float32 slice as a pgvector text literal: "[1,2,3]".
// Passed as a bound parameter and cast with ::vector server-side.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
