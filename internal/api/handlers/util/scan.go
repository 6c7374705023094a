package util

import (
	"bytes"
	"fmt"

	clamd "github.com/dutchcoders/go-clamd"
	"go.uber.org/zap"
)

// Scanner runs uploads through ClamAV before they are processed. Optional: a
// nil Scanner skips scanning entirely.
type Scanner struct {
	addr string
	log  *zap.Logger
}

func NewScanner(addr string, log *zap.Logger) *Scanner {
	return &Scanner{addr: addr, log: log}
}

// ScanBytes streams the upload to clamd and fails on any detection. A scanner
// connection error is returned as-is so the caller can decide whether to fail
// open or closed.
func (s *Scanner) ScanBytes(data []byte) error {
	if s == nil {
		return nil
	}

	c := clamd.NewClamd(s.addr)
	response, err := c.ScanStream(bytes.NewReader(data), make(chan bool))
	if err != nil {
		return fmt.Errorf("clamav scan: %w", err)
	}

	for res := range response {
		if res.Status == clamd.RES_FOUND {
			s.log.Warn("virus detected in upload", zap.String("signature", res.Description))
			return fmt.Errorf("upload rejected: %s", res.Description)
		}
	}
	return nil
}
