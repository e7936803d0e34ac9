package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetectPattern(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  ValuePattern
	}{
		{"int", int64(42), PatternNumeric},
		{"negative decimal", "-3.14", PatternNumeric},
		{"two dots", "1.2.3", PatternText},
		{"date", "2024-01-31", PatternDate},
		{"slash date", "31/01/2024", PatternDate},
		{"email", "ada@example.com", PatternEmail},
		{"blank", "  ", PatternEmpty},
		{"text", "Shipped", PatternText},
		{"short with dash", "A-1", PatternText},
		{"time value", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), PatternDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectPattern(tt.value))
		})
	}
}

func TestValuePatterns(t *testing.T) {
	assert.Nil(t, valuePatterns(nil))
	assert.Equal(t, map[ValuePattern]int{
		PatternNumeric: 2,
		PatternEmail:   1,
	}, valuePatterns([]interface{}{int64(1), "2", "a@b.co"}))
}
