package seed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

func contentType(format string) string {
	if format == "csv" {
		return "text/csv"
	}
	return "application/vnd.apache.parquet"
}

// WriteFile writes events to <dir>/<name>.<format> and returns the absolute
// path so the API can read it regardless of its working directory.
func WriteFile(dir, name, format string, events []Event) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(dir, name+"."+format))
	if err != nil {
		return "", fmt.Errorf("resolve output path: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create seed file: %w", err)
	}
	if err := encode(file, format, events); err != nil {
		_ = file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close seed file: %w", err)
	}
	return path, nil
}

func encode(w io.Writer, format string, events []Event) error {
	switch format {
	case "csv":
		writer := csv.NewWriter(w)
		if err := writer.Write(csvHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		for _, event := range events {
			if err := writer.Write(event.csvRecord()); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("flush csv: %w", err)
		}
		return nil
	case "parquet":
		writer := parquet.NewGenericWriter[Event](w)
		if _, err := writer.Write(events); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("close parquet writer: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
