package virtual

import (
	"fmt"
	"strings"
)

// CreateFlags indicate specific block behaviors to activate or deactivate
type CreateFlags int32

const (
	// BlockCreateExternallySynchronized ensures that the block will not be synchronized internally.
	// The consumer must guarantee it is used from only one goroutine at a time or is synchronized
	// by some other mechanism, but performance may improve because internal mutexes are not used.
	BlockCreateExternallySynchronized CreateFlags = 1 << iota
)

var createFlagsMapping = map[CreateFlags]string{
	BlockCreateExternallySynchronized: "BlockCreateExternallySynchronized",
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for i := 0; i < 32; i++ {
		bit := CreateFlags(1) << i
		if f&bit == 0 {
			continue
		}

		name, ok := createFlagsMapping[bit]
		if !ok {
			name = fmt.Sprintf("Unknown(0x%x)", uint32(bit))
		}
		names = append(names, name)
	}

	return strings.Join(names, "|")
}
