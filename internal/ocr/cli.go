package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"strconv"
	"strings"

	"github.com/andresmejia3/keyredact/internal/types"
	"github.com/andresmejia3/keyredact/internal/utils"
)

// CLIEngine shells out to the tesseract binary and parses its TSV report.
// It needs no cgo, at the cost of one process per frame.
type CLIEngine struct {
	Binary    string
	Languages []string
}

// NewCLIEngine returns an engine using the tesseract binary found in PATH.
func NewCLIEngine(languages ...string) (*CLIEngine, error) {
	if err := utils.RequireBinary("tesseract"); err != nil {
		return nil, err
	}
	return &CLIEngine{Binary: "tesseract", Languages: languages}, nil
}

func (e *CLIEngine) Name() string { return "cli" }

// Close is a no-op; each Recognize call owns its process.
func (e *CLIEngine) Close() error { return nil }

// Recognize pipes frame as PNG into `tesseract stdin stdout tsv`.
func (e *CLIEngine) Recognize(ctx context.Context, frame image.Image) ([]types.Token, error) {
	var in bytes.Buffer
	if err := png.Encode(&in, frame); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	args := []string{"stdin", "stdout"}
	if len(e.Languages) > 0 {
		args = append(args, "-l", strings.Join(e.Languages, "+"))
	}
	args = append(args, "tsv")

	cmd := utils.NewSafeCommand(ctx, e.Binary, args...)
	cmd.Stdin = &in
	out, err := cmd.Output()
	if err != nil {
		return nil, cmd.Wrap("tesseract", err)
	}
	return ParseTSV(bytes.NewReader(out))
}

// tsvColumns are the columns tesseract writes, in order.
var tsvColumns = []string{"level", "page_num", "block_num", "par_num", "line_num", "word_num",
	"left", "top", "width", "height", "conf", "text"}

// ParseTSV reads a tesseract TSV report. Every data row becomes a token,
// including the structural rows (conf -1, empty text); callers filter them.
// Rows whose geometry is not numeric are skipped. The confidence column is
// kept verbatim.
func ParseTSV(r io.Reader) ([]types.Token, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("empty tsv report")
	}
	col, err := indexColumns(scanner.Text())
	if err != nil {
		return nil, err
	}
	// text may be absent on structural rows; everything else is required.
	minFields := 0
	for _, name := range []string{"left", "top", "width", "height", "conf"} {
		if col[name]+1 > minFields {
			minFields = col[name] + 1
		}
	}

	var tokens []types.Token
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < minFields {
			continue
		}

		var geom [4]int
		valid := true
		for i, name := range []string{"left", "top", "width", "height"} {
			v, err := strconv.Atoi(strings.TrimSpace(fields[col[name]]))
			if err != nil {
				valid = false
				break
			}
			geom[i] = v
		}
		if !valid {
			continue
		}

		text := ""
		if col["text"] < len(fields) {
			text = fields[col["text"]]
		}
		tokens = append(tokens, types.Token{
			Text: text,
			Box:  types.BoundingBox{X: geom[0], Y: geom[1], Width: geom[2], Height: geom[3]},
			Conf: fields[col["conf"]],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

func indexColumns(header string) (map[string]int, error) {
	col := make(map[string]int, len(tsvColumns))
	for i, name := range strings.Split(strings.TrimRight(header, "\r"), "\t") {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range tsvColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("tsv header missing column %q", name)
		}
	}
	return col, nil
}
