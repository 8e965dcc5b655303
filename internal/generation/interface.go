package generation

import "context"

type Processor interface {
	Process(ctx context.Context, audio []byte, mimeType string) (string, error)
}
