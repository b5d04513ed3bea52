package canxl

import (
	"context"
)

// RegisterReader reads register values one by one from dump source (file, serial console, HTTP request body).
type RegisterReader interface {
	ReadRegister(ctx context.Context) (RegisterValue, error)
	Close() error
}

// ReportDecoder decodes register dump into report with decoded fields and findings.
type ReportDecoder interface {
	Decode(dump Dump) (Report, error)
}
