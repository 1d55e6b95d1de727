package annotconv

// YOLO specific functionality.

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"
)

// YOLOLine is a single annotation line within a YOLO file.
type YOLOLine struct {
	Box   NormalizedBox
	Class int
}

// FormatYOLO renders the annotations of img as YOLO text: one line per annotation with six decimal
// digits per coordinate, newline separated, without a trailing newline.
func FormatYOLO(img AnnotatedImage) string {
	lines := make([]string, len(img.Annotations))
	for i, a := range img.Annotations {
		lines[i] = formatYOLOLine(a.Class, a.Box)
	}
	return strings.Join(lines, "\n")
}

func formatYOLOLine(class int, b NormalizedBox) string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", class, b.XCenter, b.YCenter, b.Width, b.Height)
}

// WriteYOLO writes img to <dirPath>/<img.Name>.txt, creating dirPath and its parents if necessary.
// An existing file is replaced atomically. Returns the path of the written file.
func WriteYOLO(dirPath string, img AnnotatedImage) (string, error) {
	if img.Name == "" {
		return "", fmt.Errorf("missing output name for image %q", img.FileName)
	}
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(dirPath, img.OutputName())
	if err := renameio.WriteFile(path, []byte(FormatYOLO(img)), 0644); err != nil {
		return "", fmt.Errorf("cannot write file %q: %w", path, err)
	}
	return path, nil
}

// ReadYOLO reads and parses the YOLO annotation file at path.
func ReadYOLO(path string) (lines []YOLOLine, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeWithErrCheck(f, &err)

	return ParseYOLO(f)
}

// ParseYOLO parses YOLO annotation lines. Blank lines are skipped.
func ParseYOLO(r io.Reader) ([]YOLOLine, error) {
	var lines []YOLOLine

	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		l, err := parseYOLOLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		lines = append(lines, l)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

// parseYOLOLine parses the values for a single annotation.
func parseYOLOLine(line string) (YOLOLine, error) {
	l := YOLOLine{}

	tokens := strings.Fields(line)
	if len(tokens) != 5 {
		return l, fmt.Errorf("%w: expected 5 values in %q", ErrMalformedAnnotation, line)
	}

	var err error
	if l.Class, err = strconv.Atoi(tokens[0]); err != nil {
		return l, fmt.Errorf("%w: unexpected class in %q", ErrMalformedAnnotation, line)
	}

	var v [4]float64
	for i := 0; i < 4 && err == nil; i++ {
		v[i], err = strconv.ParseFloat(tokens[i+1], 64)
		if err == nil && (math.IsNaN(v[i]) || math.IsInf(v[i], 0)) {
			err = fmt.Errorf("%s is not finite", tokens[i+1])
		}
	}
	if err != nil {
		return l, fmt.Errorf("%w: unexpected values in %q: %v", ErrMalformedAnnotation, line, err)
	}
	l.Box = NormalizedBox{XCenter: v[0], YCenter: v[1], Width: v[2], Height: v[3]}

	return l, nil
}
