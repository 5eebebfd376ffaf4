package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)
