package synthesis

import "context"

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Available() error
}
