package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 290

var safeCode = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// QRGenerator writes one PNG QR code per ticket into dir.
type QRGenerator struct {
	dir  string
	size int
}

func NewQRGenerator(dir string) *QRGenerator {
	return &QRGenerator{dir: dir, size: DefaultSize}
}

// Generate encodes ticketCode and returns the path of the written PNG.
func (g *QRGenerator) Generate(ctx context.Context, ticketCode string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !safeCode.MatchString(ticketCode) {
		return "", fmt.Errorf("invalid ticket code %q", ticketCode)
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create qr directory: %w", err)
	}

	png, err := qrcode.Encode(ticketCode, qrcode.Low, g.size)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr code: %w", err)
	}

	path := filepath.Join(g.dir, ticketCode+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write qr code: %w", err)
	}
	return path, nil
}
