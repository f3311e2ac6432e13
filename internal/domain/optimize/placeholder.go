package optimize

import (
	"context"
	"time"
)

// Placeholder is a rendered blur preview held in the placeholder store so
// pages can inline it without waiting on the image pipeline. Key is the
// canonical query encoding of the descriptor and doubles as the store key.
type Placeholder struct {
	Key        string     `json:"key"`
	Src        string     `json:"src"`
	SVG        string     `json:"svg"`
	Descriptor Descriptor `json:"descriptor"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewPlaceholder builds a store entry for a rendered blur descriptor.
func NewPlaceholder(d Descriptor, svg string) Placeholder {
	return Placeholder{
		Key:        d.EncodeQuery(),
		Src:        d.Src,
		SVG:        svg,
		Descriptor: d,
		CreatedAt:  time.Now(),
	}
}

// PlaceholderSink receives rendered placeholders. The placeholder store
// implements it; the prelister and the created-event listener feed it.
type PlaceholderSink interface {
	Put(ctx context.Context, p Placeholder) error
}
