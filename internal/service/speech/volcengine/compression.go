package volcengine

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// decompress 按帧头声明的方式解压payload
func decompress(data []byte, method uint8) ([]byte, error) {
	switch method {
	case compressionNone:
		return data, nil
	case compressionGzip:
		if len(data) == 0 {
			return nil, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer reader.Close()

		out, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip read: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
}
