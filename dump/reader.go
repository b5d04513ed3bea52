package dump

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aldas/go-canxl-regs"
)

// Reader reads register values from text dump (file, stdin, serial console output).
type Reader struct {
	reader   io.Reader
	scanner  *bufio.Scanner
	resolver Resolver
	line     int
}

// NewReader creates new dump reader. Resolver is optional and allows register names instead of addresses.
func NewReader(reader io.Reader, resolver Resolver) *Reader {
	return &Reader{
		reader:   reader,
		scanner:  bufio.NewScanner(reader),
		resolver: resolver,
	}
}

// ReadRegister reads next register value. Returns io.EOF when there are no more values.
func (r *Reader) ReadRegister(ctx context.Context) (canxl.RegisterValue, error) {
	for r.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return canxl.RegisterValue{}, err
		}
		r.line++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		v, ok, err := UnmarshalLine(line, r.resolver)
		if err != nil {
			return canxl.RegisterValue{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		if ok {
			return v, nil
		}
	}
	if err := r.scanner.Err(); err != nil {
		return canxl.RegisterValue{}, err
	}
	return canxl.RegisterValue{}, io.EOF
}

// Close closes underlying reader when it implements io.Closer.
func (r *Reader) Close() error {
	closer, ok := r.reader.(io.Closer)
	if ok {
		return closer.Close()
	}
	return nil
}

// ReadAll reads all register values until io.EOF.
func ReadAll(ctx context.Context, reader canxl.RegisterReader) (canxl.Dump, error) {
	result := make(canxl.Dump, 0, 16)
	for {
		v, err := reader.ReadRegister(ctx)
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return result, err
		}
		result = append(result, v)
	}
}
