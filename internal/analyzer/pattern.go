package analyzer

import (
	"fmt"
	"strings"
	"unicode"
)

// ValuePattern 样本值的形态，不暴露实际值
type ValuePattern string

const (
	PatternEmpty   ValuePattern = "empty"
	PatternNumeric ValuePattern = "numeric"
	PatternDate    ValuePattern = "date"
	PatternEmail   ValuePattern = "email"
	PatternText    ValuePattern = "text"
)

// detectPattern 判断单个值的形态
func detectPattern(v interface{}) ValuePattern {
	s := strings.TrimSpace(fmt.Sprint(v))
	switch {
	case s == "":
		return PatternEmpty
	case isNumeric(s):
		return PatternNumeric
	case isDateLike(s):
		return PatternDate
	case strings.Contains(s, "@") && strings.Contains(s, "."):
		return PatternEmail
	}
	return PatternText
}

// valuePatterns 样本值的形态分布
func valuePatterns(values []interface{}) map[ValuePattern]int {
	if len(values) == 0 {
		return nil
	}
	out := make(map[ValuePattern]int)
	for _, v := range values {
		out[detectPattern(v)]++
	}
	return out
}

// isNumeric 整数或小数，允许前导负号
func isNumeric(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" || strings.Count(s, ".") > 1 || s == "." {
		return false
	}
	for _, c := range s {
		if c != '.' && !unicode.IsDigit(c) {
			return false
		}
	}
	return true
}

// isDateLike 以数字开头、含 - 或 / 分隔的值
func isDateLike(s string) bool {
	return len(s) >= 8 && unicode.IsDigit(rune(s[0])) && strings.ContainsAny(s, "-/")
}
