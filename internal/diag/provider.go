package diag

import (
	"fmt"
	"slices"
	"strings"
)

const RuntimeProvider = "Microsoft-Windows-DotNETRuntime"

// Runtime provider keywords
const (
	KeywordGC            uint64 = 0x1
	KeywordGCHeapCollect uint64 = 0x800000
)

type Level uint32

const (
	LevelLogAlways     Level = 0
	LevelCritical      Level = 1
	LevelError         Level = 2
	LevelWarning       Level = 3
	LevelInformational Level = 4
	LevelVerbose       Level = 5
)

// Provider is one event category requested from the runtime.
type Provider struct {
	Name      string
	Level     Level
	Keywords  uint64
	Arguments map[string]string
}

// FilterData encodes Arguments the way the runtime expects: key=value pairs joined by ';'.
func (p Provider) FilterData() string {
	if len(p.Arguments) == 0 {
		return ""
	}

	keys := make([]string, 0, len(p.Arguments))
	for k := range p.Arguments {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+p.Arguments[k])
	}
	return strings.Join(pairs, ";")
}

func (p Provider) String() string {
	return fmt.Sprintf("%s:0x%x:%d", p.Name, p.Keywords, p.Level)
}

// GCProviders requests every GC event of the runtime provider.
func GCProviders() []Provider {
	return []Provider{{
		Name:     RuntimeProvider,
		Level:    LevelInformational,
		Keywords: KeywordGC,
	}}
}

// HeapCollectProviders asks the runtime for a single induced collection.
// The Id argument is accepted by the runtime but not yet used to tag the collection.
func HeapCollectProviders(clientSequenceNumber int64) []Provider {
	return []Provider{{
		Name:     RuntimeProvider,
		Level:    LevelInformational,
		Keywords: KeywordGCHeapCollect,
		Arguments: map[string]string{
			"Id": fmt.Sprintf("%d", clientSequenceNumber),
		},
	}}
}
