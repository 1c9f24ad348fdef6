package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// MemorySize is a size in bytes. It parses strings like "256M" and prints
// them back in the largest whole unit.
type MemorySize int64

const (
	Byte MemorySize = 1
	KB   MemorySize = 1024 * Byte
	MB   MemorySize = 1024 * KB
	GB   MemorySize = 1024 * MB
	TB   MemorySize = 1024 * GB
)

var memoryUnits = []struct {
	size   MemorySize
	suffix string
}{
	{TB, "T"},
	{GB, "G"},
	{MB, "M"},
	{KB, "K"},
}

func (m MemorySize) String() string {
	if m <= 0 {
		return "0B"
	}

	for _, u := range memoryUnits {
		if m < u.size {
			continue
		}
		val := float64(m) / float64(u.size)
		if val == float64(int64(val)) {
			return fmt.Sprintf("%.0f%s", val, u.suffix)
		}
		return fmt.Sprintf("%.2f%s", val, u.suffix)
	}
	return fmt.Sprintf("%dB", m)
}

// Bytes returns the memory size as bytes
func (m MemorySize) Bytes() int64 {
	return int64(m)
}

// MB returns the memory size as megabytes
func (m MemorySize) MB() float64 {
	return float64(m) / float64(MB)
}

// ParseMemorySize parses a memory size string like "9M", "2G", "1024K"
func ParseMemorySize(s string) (MemorySize, error) {
	s = strings.TrimSpace(s)
	if len(s) == 0 {
		return 0, fmt.Errorf("empty memory size string")
	}

	multiplier := Byte
	valueStr := s
	switch strings.ToUpper(s[len(s)-1:]) {
	case "T":
		multiplier = TB
	case "G":
		multiplier = GB
	case "M":
		multiplier = MB
	case "K":
		multiplier = KB
	case "B":
		multiplier = Byte
	}
	if multiplier != Byte || strings.EqualFold(s[len(s)-1:], "B") {
		valueStr = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid memory size: %s", s)
	}

	return MemorySize(value * float64(multiplier)), nil
}

// Set implements pflag.Value
func (m *MemorySize) Set(s string) error {
	size, err := ParseMemorySize(s)
	if err != nil {
		return err
	}
	*m = size
	return nil
}

// Type implements pflag.Value
func (m *MemorySize) Type() string {
	return "size"
}

// UnmarshalText lets config files and environment variables use "256M" style values
func (m *MemorySize) UnmarshalText(text []byte) error {
	return m.Set(string(text))
}
